package hub

import "context"

// Channel identifies one of the hub's four switchable USB ports.
type Channel int

// Channel range supported by the hardware.
const (
	MinChannel Channel = 1
	MaxChannel Channel = 4
)

// Valid reports whether the channel is within the hub's range.
func (c Channel) Valid() bool {
	return c >= MinChannel && c <= MaxChannel
}

// State is a binary channel state: power off/on, or dataline
// disconnected/connected.
type State int

// Channel states as carried on the wire and over the HTTP API.
const (
	StateOff State = 0
	StateOn  State = 1
)

// Valid reports whether the state is exactly 0 or 1.
func (s State) Valid() bool {
	return s == StateOff || s == StateOn
}

// DeviceInfo is the hub's identity as reported by an info request.
// Fields are passed through to API clients verbatim.
type DeviceInfo struct {
	Model        string `json:"model"`
	Firmware     string `json:"firmware"`
	HardwareRev  int    `json:"hardware_rev"`
	ChannelCount int    `json:"channels"`
	SerialNumber string `json:"serial_number"`
	Port         string `json:"port"`
}

// Conn is the device connection as seen by the session manager.
// It allows tests to substitute a scripted device for real hardware.
//
// Implementations are not required to be safe for concurrent use;
// the session manager serialises all callers.
type Conn interface {
	Info(ctx context.Context) (DeviceInfo, error)
	SetPower(ctx context.Context, channels []Channel, state State) (bool, error)
	PowerStatus(ctx context.Context, channels []Channel) (map[Channel]State, error)
	SetDataline(ctx context.Context, channels []Channel, state State) (bool, error)
	DatalineStatus(ctx context.Context, channels []Channel) (map[Channel]State, error)
	Port() string
	Close() error
}

// Ensure Driver implements Conn.
var _ Conn = (*Driver)(nil)
