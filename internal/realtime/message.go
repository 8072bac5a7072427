package realtime

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is one inbound frame: {"type": string, "data": object}.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

var (
	errInvalidJSON = errors.New("frame is not valid JSON")
	errMissingType = errors.New("frame has no string type")
	errBadData     = errors.New("frame data is not an object")
)

// ParseMessage validates and decodes a text frame. A missing or null data
// field yields an empty Data map.
func ParseMessage(frame []byte) (Message, error) {
	if !gjson.ValidBytes(frame) {
		return Message{}, errInvalidJSON
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return Message{}, errInvalidJSON
	}
	typ := root.Get("type")
	if typ.Type != gjson.String || strings.TrimSpace(typ.Str) == "" {
		return Message{}, errMissingType
	}
	msg := Message{Type: typ.Str, Data: map[string]any{}}
	data := root.Get("data")
	switch {
	case !data.Exists() || data.Type == gjson.Null:
	case data.IsObject():
		if err := json.Unmarshal([]byte(data.Raw), &msg.Data); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, errBadData
	}
	return msg, nil
}
