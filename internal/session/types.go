package session

import (
	"time"

	"github.com/openusb/usbhubd/internal/hub"
)

// Status is the result of a channel status query. A query for one
// channel yields a scalar state; a query for several yields a
// per-channel mapping. The two shapes are deliberate: clients of the
// original service depend on the scalar form for single lookups.
type Status struct {
	single  bool
	channel hub.Channel
	state   hub.State
	states  map[hub.Channel]hub.State
}

// SingleStatus wraps one channel's state in the scalar form.
func SingleStatus(ch hub.Channel, st hub.State) Status {
	return Status{single: true, channel: ch, state: st}
}

// MultiStatus wraps a per-channel state mapping.
func MultiStatus(states map[hub.Channel]hub.State) Status {
	return Status{states: states}
}

// Single returns the scalar form. ok is false for multi-channel results.
func (s Status) Single() (hub.Channel, hub.State, bool) {
	return s.channel, s.state, s.single
}

// Map returns the per-channel mapping form. For a single-channel result
// it synthesises a one-entry map.
func (s Status) Map() map[hub.Channel]hub.State {
	if s.single {
		return map[hub.Channel]hub.State{s.channel: s.state}
	}
	return s.states
}

// Event describes a completed state change, emitted to the change
// callback after the device acknowledged a set operation.
type Event struct {
	// Function is "power" or "dataline".
	Function string

	Channels []hub.Channel
	State    hub.State
	Time     time.Time
}

// Stats is a point-in-time snapshot of session counters, served by the
// metrics endpoint.
type Stats struct {
	Port       string    `json:"port"`
	Connected  bool      `json:"connected"`
	Operations uint64    `json:"operations"`
	Errors     uint64    `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
}
