package realtime

import "time"

// State is the connection state of a Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StateNames lists every state label, for gauges.
func StateNames() []string {
	return append([]string(nil), stateNames[:]...)
}

// StateChange is the payload published on events.TopicChannelState.
type StateChange struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Stats is a point-in-time view of the channel counters.
type Stats struct {
	State       string    `json:"state"`
	URL         string    `json:"url"`
	Attempts    uint64    `json:"attempts"`     // dials since construction
	Failures    uint64    `json:"failures"`     // consecutive failures, reset on connect
	Reconnects  uint64    `json:"reconnects"`   // reconnect timers armed
	Delivered   uint64    `json:"delivered"`    // messages handed to subscribers
	Dropped     uint64    `json:"dropped"`      // frames rejected by the parser
	ConnectedAt time.Time `json:"connected_at"` // zero unless connected
	LastError   string    `json:"last_error,omitempty"`
}
