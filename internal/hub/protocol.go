package hub

import "fmt"

// Wire framing for the hub control protocol.
//
// Every frame, in both directions, has the same shape:
//
//	+------+------+-----+-----+----------+-------+
//	| 0x55 | 0x5A | cmd | len | payload  | csum  |
//	+------+------+-----+-----+----------+-------+
//
// len counts payload bytes only. csum is the XOR of cmd, len and the
// payload. Responses echo the request's cmd byte.
const (
	frameHeader1 = 0x55
	frameHeader2 = 0x5A

	// Fixed overhead: two header bytes, cmd, len, checksum.
	frameOverhead = 5

	maxPayload = 64
)

// Command bytes understood by the hub.
const (
	cmdSetPower    byte = 0x01
	cmdGetPower    byte = 0x02
	cmdSetDataline byte = 0x03
	cmdGetDataline byte = 0x04
	cmdGetInfo     byte = 0x10
)

// Acknowledgement byte in set-command responses.
const (
	ackOK     byte = 0x01
	ackReject byte = 0x00
)

// checksum computes the frame checksum over cmd, len and payload.
func checksum(cmd byte, payload []byte) byte {
	sum := cmd ^ byte(len(payload))
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// encodeFrame builds a complete wire frame for the given command.
func encodeFrame(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("payload too large: %d bytes", len(payload))
	}

	frame := make([]byte, 0, frameOverhead+len(payload))
	frame = append(frame, frameHeader1, frameHeader2, cmd, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, checksum(cmd, payload))
	return frame, nil
}

// decodeFrame validates a complete frame and returns its command byte
// and payload. The payload aliases the input slice.
func decodeFrame(frame []byte) (cmd byte, payload []byte, err error) {
	if len(frame) < frameOverhead {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if frame[0] != frameHeader1 || frame[1] != frameHeader2 {
		return 0, nil, fmt.Errorf("bad frame header: 0x%02x 0x%02x", frame[0], frame[1])
	}

	cmd = frame[2]
	plen := int(frame[3])
	if len(frame) != frameOverhead+plen {
		return 0, nil, fmt.Errorf("frame length mismatch: header says %d payload bytes, frame has %d", plen, len(frame)-frameOverhead)
	}

	payload = frame[4 : 4+plen]
	if got, want := frame[len(frame)-1], checksum(cmd, payload); got != want {
		return 0, nil, fmt.Errorf("checksum mismatch: got 0x%02x, want 0x%02x", got, want)
	}

	return cmd, payload, nil
}

// maskForChannels packs channel numbers into the 4-bit wire mask.
// Channel 1 is bit 0. Callers validate channels before this point.
func maskForChannels(channels []Channel) byte {
	var mask byte
	for _, ch := range channels {
		mask |= 1 << (ch - 1)
	}
	return mask
}

// statesFromMask extracts the per-channel states the caller asked about
// from a status mask reported by the device.
func statesFromMask(mask byte, channels []Channel) map[Channel]State {
	states := make(map[Channel]State, len(channels))
	for _, ch := range channels {
		if mask&(1<<(ch-1)) != 0 {
			states[ch] = StateOn
		} else {
			states[ch] = StateOff
		}
	}
	return states
}

// parseInfo decodes an info response payload.
//
// Layout: firmware major, firmware minor, hardware revision, channel
// count, then the serial number as ASCII.
func parseInfo(payload []byte) (DeviceInfo, error) {
	if len(payload) < 4 {
		return DeviceInfo{}, fmt.Errorf("info payload too short: %d bytes", len(payload))
	}

	return DeviceInfo{
		Model:        "SmartUSBHub",
		Firmware:     fmt.Sprintf("%d.%d", payload[0], payload[1]),
		HardwareRev:  int(payload[2]),
		ChannelCount: int(payload[3]),
		SerialNumber: string(payload[4:]),
	}, nil
}
