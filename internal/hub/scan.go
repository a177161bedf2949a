package hub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// listPorts enumerates the system's serial ports. A package variable
// so tests can substitute a fixed port list, mirroring the driver's
// transport seam.
var listPorts = serial.GetPortsList

// Scan probes the system's serial ports for a hub and connects to the
// first one that answers an info request. Ports that look like USB
// serial adapters are tried first.
//
// Parameters:
//   - ctx: Bounds the whole discovery pass
//   - cfg: Baud rate and read timeout for each probe; cfg.Port is ignored
//
// Returns:
//   - *Driver: Connected driver on the discovered port
//   - error: ErrNoDevice when every candidate was probed without success
func Scan(ctx context.Context, cfg Config) (*Driver, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("%w: listing serial ports: %v", ErrNoDevice, err)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("%w: no serial ports present", ErrNoDevice)
	}

	for _, name := range rankCandidates(ports) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: scan aborted: %v", ErrNoDevice, err)
		}

		probe := cfg
		probe.Port = name
		drv, err := Open(probe)
		if err != nil {
			continue
		}
		return drv, nil
	}

	return nil, fmt.Errorf("%w: probed %d ports", ErrNoDevice, len(ports))
}

// rankCandidates orders port names so USB serial adapters are probed
// before built-in UARTs, which tend to block or answer garbage.
func rankCandidates(ports []string) []string {
	ranked := make([]string, 0, len(ports))
	var rest []string
	for _, p := range ports {
		if isUSBSerial(p) {
			ranked = append(ranked, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(ranked, rest...)
}

func isUSBSerial(name string) bool {
	for _, prefix := range []string{
		"/dev/ttyUSB", "/dev/ttyACM", "/dev/cu.usbserial", "/dev/cu.usbmodem", "COM",
	} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ScanTimeout wraps Scan with a deadline, the usual way cmd/usbhubd
// invokes discovery.
func ScanTimeout(cfg Config, timeout time.Duration) (*Driver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Scan(ctx, cfg)
}
