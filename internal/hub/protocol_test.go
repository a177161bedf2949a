package hub

import (
	"bytes"
	"testing"
)

// ─────────────────────────── Frame Codec ───────────────────────────

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		cmd     byte
		payload []byte
		want    []byte
	}{
		{
			name: "no payload",
			cmd:  cmdGetInfo,
			want: []byte{0x55, 0x5A, 0x10, 0x00, 0x10},
		},
		{
			name:    "status query for channels 1 and 3",
			cmd:     cmdGetPower,
			payload: []byte{0x05},
			want:    []byte{0x55, 0x5A, 0x02, 0x01, 0x05, 0x06},
		},
		{
			name:    "set power on channel 2",
			cmd:     cmdSetPower,
			payload: []byte{0x02, 0x01},
			want:    []byte{0x55, 0x5A, 0x01, 0x02, 0x02, 0x01, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeFrame(tt.cmd, tt.payload)
			if err != nil {
				t.Fatalf("encodeFrame() error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("encodeFrame() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestEncodeFrame_PayloadTooLarge(t *testing.T) {
	if _, err := encodeFrame(cmdGetInfo, make([]byte, maxPayload+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	frame, err := encodeFrame(cmdSetDataline, []byte{0x0F, 0x00})
	if err != nil {
		t.Fatalf("encodeFrame() error: %v", err)
	}

	cmd, payload, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame() error: %v", err)
	}
	if cmd != cmdSetDataline {
		t.Errorf("cmd = 0x%02x, want 0x%02x", cmd, cmdSetDataline)
	}
	if !bytes.Equal(payload, []byte{0x0F, 0x00}) {
		t.Errorf("payload = % x, want 0f 00", payload)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"truncated", []byte{0x55, 0x5A, 0x02}},
		{"bad header", []byte{0xAA, 0x5A, 0x02, 0x00, 0x02}},
		{"length mismatch", []byte{0x55, 0x5A, 0x02, 0x05, 0x01, 0x06}},
		{"bad checksum", []byte{0x55, 0x5A, 0x02, 0x01, 0x05, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := decodeFrame(tt.frame); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

// ─────────────────────────── Channel Masks ───────────────────────────

func TestMaskForChannels(t *testing.T) {
	tests := []struct {
		name     string
		channels []Channel
		want     byte
	}{
		{"single channel 1", []Channel{1}, 0x01},
		{"single channel 4", []Channel{4}, 0x08},
		{"channels 1 and 3", []Channel{1, 3}, 0x05},
		{"all channels", []Channel{1, 2, 3, 4}, 0x0F},
		{"duplicates collapse", []Channel{2, 2}, 0x02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskForChannels(tt.channels); got != tt.want {
				t.Errorf("maskForChannels(%v) = 0x%02x, want 0x%02x", tt.channels, got, tt.want)
			}
		})
	}
}

func TestStatesFromMask(t *testing.T) {
	// Device reports channels 1 and 4 on; caller asked about 1, 2 and 4.
	states := statesFromMask(0x09, []Channel{1, 2, 4})

	want := map[Channel]State{1: StateOn, 2: StateOff, 4: StateOn}
	if len(states) != len(want) {
		t.Fatalf("got %d states, want %d", len(states), len(want))
	}
	for ch, st := range want {
		if states[ch] != st {
			t.Errorf("channel %d = %d, want %d", ch, states[ch], st)
		}
	}
	if _, ok := states[3]; ok {
		t.Error("channel 3 was not queried but appears in result")
	}
}

// ─────────────────────────── Info Payload ───────────────────────────

func TestParseInfo(t *testing.T) {
	payload := append([]byte{2, 7, 3, 4}, []byte("SH-4X-00123")...)

	info, err := parseInfo(payload)
	if err != nil {
		t.Fatalf("parseInfo() error: %v", err)
	}

	if info.Firmware != "2.7" {
		t.Errorf("firmware = %q, want 2.7", info.Firmware)
	}
	if info.HardwareRev != 3 {
		t.Errorf("hardware rev = %d, want 3", info.HardwareRev)
	}
	if info.ChannelCount != 4 {
		t.Errorf("channel count = %d, want 4", info.ChannelCount)
	}
	if info.SerialNumber != "SH-4X-00123" {
		t.Errorf("serial number = %q, want SH-4X-00123", info.SerialNumber)
	}
}

func TestParseInfo_TooShort(t *testing.T) {
	if _, err := parseInfo([]byte{2, 7}); err == nil {
		t.Error("expected error for short info payload")
	}
}

// ─────────────────────────── Validation Types ───────────────────────────

func TestChannelValid(t *testing.T) {
	for _, ch := range []Channel{1, 2, 3, 4} {
		if !ch.Valid() {
			t.Errorf("channel %d should be valid", ch)
		}
	}
	for _, ch := range []Channel{0, 5, -1, 100} {
		if ch.Valid() {
			t.Errorf("channel %d should be invalid", ch)
		}
	}
}

func TestStateValid(t *testing.T) {
	if !StateOff.Valid() || !StateOn.Valid() {
		t.Error("states 0 and 1 should be valid")
	}
	if State(2).Valid() || State(-1).Valid() {
		t.Error("states outside 0..1 should be invalid")
	}
}
