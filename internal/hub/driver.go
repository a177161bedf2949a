package hub

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Config holds the parameters for opening a hub connection.
type Config struct {
	// Port is the serial device path, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate for the control link. Zero means 115200.
	BaudRate int

	// ReadTimeout bounds one command round-trip. Zero means 500ms.
	ReadTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
}

// transport is the byte-level connection the driver talks through.
// serial.Port satisfies it; tests substitute an in-memory fake.
type transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	Close() error
}

// Driver is a connection to one hub over its serial control link.
//
// Driver performs no locking. The control link is strictly one command
// in flight at a time; internal/session serialises all callers.
type Driver struct {
	port        transport
	portName    string
	readTimeout time.Duration
	closed      bool
}

// Open connects to the hub on the configured serial port and verifies
// that the device answers an info request.
//
// Returns:
//   - *Driver: Connected driver, ready for commands
//   - error: ErrConnectionFailed if the port cannot be opened or the
//     device does not respond to the probe
func Open(cfg Config) (*Driver, error) {
	cfg.applyDefaults()

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrConnectionFailed, cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: setting read timeout on %s: %v", ErrConnectionFailed, cfg.Port, err)
	}

	d := &Driver{
		port:        port,
		portName:    cfg.Port,
		readTimeout: cfg.ReadTimeout,
	}

	// Probe: a device that does not answer an info request is not a hub.
	if _, err := d.Info(context.Background()); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: no hub responding on %s: %v", ErrConnectionFailed, cfg.Port, err)
	}

	return d, nil
}

// Port returns the serial device path this driver is connected to.
func (d *Driver) Port() string {
	return d.portName
}

// Close releases the serial port. Subsequent commands return
// ErrNotConnected. Safe to call more than once.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.port.Close()
}

// Info queries the device identity.
func (d *Driver) Info(ctx context.Context) (DeviceInfo, error) {
	payload, err := d.roundTrip(ctx, cmdGetInfo, nil)
	if err != nil {
		return DeviceInfo{}, err
	}

	info, err := parseInfo(payload)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %v", ErrDeviceFault, err)
	}
	info.Port = d.portName
	return info, nil
}

// SetPower switches the power rail of the given channels.
//
// Returns:
//   - bool: Whether the device acknowledged the change for all channels
//   - error: ErrDeviceFault if the round-trip failed
func (d *Driver) SetPower(ctx context.Context, channels []Channel, state State) (bool, error) {
	return d.set(ctx, cmdSetPower, channels, state)
}

// PowerStatus reports the power state of the given channels.
func (d *Driver) PowerStatus(ctx context.Context, channels []Channel) (map[Channel]State, error) {
	return d.status(ctx, cmdGetPower, channels)
}

// SetDataline switches the USB data lines of the given channels.
// Power is unaffected: a channel can charge with data disconnected.
func (d *Driver) SetDataline(ctx context.Context, channels []Channel, state State) (bool, error) {
	return d.set(ctx, cmdSetDataline, channels, state)
}

// DatalineStatus reports the data line state of the given channels.
func (d *Driver) DatalineStatus(ctx context.Context, channels []Channel) (map[Channel]State, error) {
	return d.status(ctx, cmdGetDataline, channels)
}

func (d *Driver) set(ctx context.Context, cmd byte, channels []Channel, state State) (bool, error) {
	payload, err := d.roundTrip(ctx, cmd, []byte{maskForChannels(channels), byte(state)})
	if err != nil {
		return false, err
	}
	if len(payload) != 1 {
		return false, fmt.Errorf("%w: set response payload has %d bytes, want 1", ErrDeviceFault, len(payload))
	}
	return payload[0] == ackOK, nil
}

func (d *Driver) status(ctx context.Context, cmd byte, channels []Channel) (map[Channel]State, error) {
	payload, err := d.roundTrip(ctx, cmd, []byte{maskForChannels(channels)})
	if err != nil {
		return nil, err
	}
	if len(payload) != 1 {
		return nil, fmt.Errorf("%w: status response payload has %d bytes, want 1", ErrDeviceFault, len(payload))
	}
	return statesFromMask(payload[0], channels), nil
}

// roundTrip sends one command frame and reads the matching response.
// All failures after the session is open wrap ErrDeviceFault.
func (d *Driver) roundTrip(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	if d.closed {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := encodeFrame(cmd, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceFault, err)
	}

	// Drop any stale bytes from an earlier aborted exchange.
	if err := d.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("%w: flushing input: %v", ErrDeviceFault, err)
	}

	if _, err := d.port.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: writing command 0x%02x: %v", ErrDeviceFault, cmd, err)
	}

	respCmd, respPayload, err := d.readFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: reading response to 0x%02x: %v", ErrDeviceFault, cmd, err)
	}
	if respCmd != cmd {
		return nil, fmt.Errorf("%w: response command 0x%02x does not match request 0x%02x", ErrDeviceFault, respCmd, cmd)
	}

	return respPayload, nil
}

// readFrame reads one complete frame from the port: the fixed four-byte
// prefix first, then the payload and checksum once the length is known.
func (d *Driver) readFrame() (byte, []byte, error) {
	prefix := make([]byte, 4)
	if err := d.readFull(prefix); err != nil {
		return 0, nil, err
	}

	plen := int(prefix[3])
	if plen > maxPayload {
		return 0, nil, fmt.Errorf("payload length %d exceeds maximum", plen)
	}

	rest := make([]byte, plen+1)
	if err := d.readFull(rest); err != nil {
		return 0, nil, err
	}

	return decodeFrame(append(prefix, rest...))
}

// readFull fills buf from the port. serial.Port reports a read timeout
// as (0, nil), so a zero-byte read is treated as the deadline expiring.
func (d *Driver) readFull(buf []byte) error {
	for filled := 0; filled < len(buf); {
		n, err := d.port.Read(buf[filled:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("timeout after %v waiting for %d bytes", d.readTimeout, len(buf)-filled)
		}
		filled += n
	}
	return nil
}
