// Package session owns the single device session shared by every
// client of the service.
//
// The hub's control link carries one command at a time, so the process
// holds exactly one connection and funnels all device access through a
// Manager. The Manager's mutex is the only mutual-exclusion domain in
// the service: it is held for the full command round-trip, never
// per-byte, so concurrent HTTP requests each see a complete
// request/response exchange and can never interleave on the wire.
//
// Status queries keep the service's historical response shape: asking
// about one channel yields a scalar state, asking about several yields
// a per-channel mapping. The Status type carries that distinction to
// the API layer.
//
// A Manager also fans out state changes. After a successful set
// operation it invokes the registered change callback outside the
// device lock, which feeds the MQTT publisher and WebSocket stream.
package session
