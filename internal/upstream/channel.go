package upstream

import (
	"strings"

	"dashsync-go/internal/constants"
)

// ChannelURL derives the push-channel URL from the base URL: http becomes
// ws, https becomes wss and the base path gets a "/ws" suffix.
func (c *Client) ChannelURL() string {
	u := c.BaseURL()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + constants.ChannelPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
