// Package hub implements the serial driver for the SmartUSBHub, a
// four-channel USB hub whose per-channel power rails and data lines are
// switched over a USB-serial control link.
//
// The control protocol is a synchronous request/response exchange of
// small framed messages: one command frame out, one response frame back.
// The link is half-duplex in practice: interleaving two in-flight
// commands corrupts both, so callers must serialise access. The Driver
// itself performs no locking; internal/session owns the single
// mutual-exclusion domain and is the only intended caller.
//
// # Usage
//
//	drv, err := hub.Open(hub.Config{Port: "/dev/ttyUSB0"})
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//
//	info, err := drv.Info(ctx)
//	ok, err := drv.SetPower(ctx, []hub.Channel{1, 2}, hub.StateOn)
//
// When no port is configured, Scan probes candidate USB-serial ports and
// connects to the first device that answers an info request.
package hub
