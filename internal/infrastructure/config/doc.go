// Package config loads and validates usbhubd configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// USBHUBD_* environment variable overrides. Command-line flags applied by
// cmd/usbhubd take final precedence.
//
// # Sections
//
//   - serial: the hub's serial port (explicit path or auto-scan)
//   - api: the HTTP listener
//   - mqtt: optional state publishing to a broker (disabled by default)
//   - logging: level/format/output
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
