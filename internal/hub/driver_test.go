package hub

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// fakePort is a scripted transport. Each Write is answered by the next
// queued response on subsequent Reads; an empty queue simulates a read
// timeout by returning (0, nil), matching serial.Port behaviour.
type fakePort struct {
	responses [][]byte
	pending   []byte
	written   [][]byte
	flushes   int
	closed    bool
	writeErr  error
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), p...))
	if len(f.responses) > 0 {
		f.pending = f.responses[0]
		f.responses = f.responses[1:]
	}
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, nil // timeout
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.flushes++
	f.pending = nil
	return nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

// respond builds a well-formed response frame for the fake device.
func respond(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	frame, err := encodeFrame(cmd, payload)
	if err != nil {
		t.Fatalf("building response frame: %v", err)
	}
	return frame
}

func newTestDriver(port *fakePort) *Driver {
	return &Driver{
		port:        port,
		portName:    "/dev/ttyUSB0",
		readTimeout: 100 * time.Millisecond,
	}
}

// ─────────────────────────── Commands ───────────────────────────

func TestDriver_SetPower(t *testing.T) {
	port := &fakePort{responses: [][]byte{respond(t, cmdSetPower, []byte{ackOK})}}
	d := newTestDriver(port)

	ok, err := d.SetPower(context.Background(), []Channel{1, 3}, StateOn)
	if err != nil {
		t.Fatalf("SetPower() error: %v", err)
	}
	if !ok {
		t.Error("SetPower() = false, want acknowledged")
	}

	// Command frame: mask 0x05 (channels 1 and 3), state 0x01.
	want := []byte{0x55, 0x5A, cmdSetPower, 0x02, 0x05, 0x01, checksum(cmdSetPower, []byte{0x05, 0x01})}
	if len(port.written) != 1 || !bytes.Equal(port.written[0], want) {
		t.Errorf("wrote % x, want % x", port.written, want)
	}
}

func TestDriver_SetPower_Rejected(t *testing.T) {
	port := &fakePort{responses: [][]byte{respond(t, cmdSetPower, []byte{ackReject})}}
	d := newTestDriver(port)

	ok, err := d.SetPower(context.Background(), []Channel{2}, StateOff)
	if err != nil {
		t.Fatalf("SetPower() error: %v", err)
	}
	if ok {
		t.Error("SetPower() = true, want rejected")
	}
}

func TestDriver_PowerStatus(t *testing.T) {
	// Device reports channels 2 and 4 powered.
	port := &fakePort{responses: [][]byte{respond(t, cmdGetPower, []byte{0x0A})}}
	d := newTestDriver(port)

	states, err := d.PowerStatus(context.Background(), []Channel{1, 2, 4})
	if err != nil {
		t.Fatalf("PowerStatus() error: %v", err)
	}

	want := map[Channel]State{1: StateOff, 2: StateOn, 4: StateOn}
	for ch, st := range want {
		if states[ch] != st {
			t.Errorf("channel %d = %d, want %d", ch, states[ch], st)
		}
	}
}

func TestDriver_DatalineRoundTrip(t *testing.T) {
	port := &fakePort{responses: [][]byte{
		respond(t, cmdSetDataline, []byte{ackOK}),
		respond(t, cmdGetDataline, []byte{0x01}),
	}}
	d := newTestDriver(port)

	ok, err := d.SetDataline(context.Background(), []Channel{1}, StateOn)
	if err != nil || !ok {
		t.Fatalf("SetDataline() = %v, %v; want true, nil", ok, err)
	}

	states, err := d.DatalineStatus(context.Background(), []Channel{1})
	if err != nil {
		t.Fatalf("DatalineStatus() error: %v", err)
	}
	if states[1] != StateOn {
		t.Errorf("channel 1 dataline = %d, want on", states[1])
	}
}

func TestDriver_Info(t *testing.T) {
	payload := append([]byte{1, 4, 2, 4}, []byte("SH-4X-00042")...)
	port := &fakePort{responses: [][]byte{respond(t, cmdGetInfo, payload)}}
	d := newTestDriver(port)

	info, err := d.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Firmware != "1.4" {
		t.Errorf("firmware = %q, want 1.4", info.Firmware)
	}
	if info.Port != "/dev/ttyUSB0" {
		t.Errorf("port = %q, want /dev/ttyUSB0", info.Port)
	}
}

// ─────────────────────────── Fault Handling ───────────────────────────

func TestDriver_Timeout(t *testing.T) {
	d := newTestDriver(&fakePort{}) // no responses queued

	_, err := d.PowerStatus(context.Background(), []Channel{1})
	if !errors.Is(err, ErrDeviceFault) {
		t.Errorf("error = %v, want ErrDeviceFault", err)
	}
}

func TestDriver_CommandEchoMismatch(t *testing.T) {
	port := &fakePort{responses: [][]byte{respond(t, cmdGetDataline, []byte{0x00})}}
	d := newTestDriver(port)

	_, err := d.PowerStatus(context.Background(), []Channel{1})
	if !errors.Is(err, ErrDeviceFault) {
		t.Errorf("error = %v, want ErrDeviceFault", err)
	}
}

func TestDriver_CorruptResponse(t *testing.T) {
	frame := respond(t, cmdGetPower, []byte{0x05})
	frame[len(frame)-1] ^= 0xFF // break the checksum
	port := &fakePort{responses: [][]byte{frame}}
	d := newTestDriver(port)

	_, err := d.PowerStatus(context.Background(), []Channel{1})
	if !errors.Is(err, ErrDeviceFault) {
		t.Errorf("error = %v, want ErrDeviceFault", err)
	}
}

func TestDriver_WriteError(t *testing.T) {
	port := &fakePort{writeErr: errors.New("port unplugged")}
	d := newTestDriver(port)

	_, err := d.Info(context.Background())
	if !errors.Is(err, ErrDeviceFault) {
		t.Errorf("error = %v, want ErrDeviceFault", err)
	}
}

func TestDriver_FlushesStaleInputBeforeCommand(t *testing.T) {
	port := &fakePort{responses: [][]byte{respond(t, cmdGetInfo, []byte{1, 0, 1, 4})}}
	d := newTestDriver(port)

	if _, err := d.Info(context.Background()); err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if port.flushes != 1 {
		t.Errorf("input buffer flushed %d times, want 1", port.flushes)
	}
}

func TestDriver_ContextCancelled(t *testing.T) {
	d := newTestDriver(&fakePort{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Info(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// ─────────────────────────── Lifecycle ───────────────────────────

func TestDriver_Close(t *testing.T) {
	port := &fakePort{}
	d := newTestDriver(port)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !port.closed {
		t.Error("underlying port not closed")
	}

	// Idempotent.
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	if _, err := d.Info(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("command after Close: error = %v, want ErrNotConnected", err)
	}
}

// ─────────────────────────── Port Ranking ───────────────────────────

func TestRankCandidates(t *testing.T) {
	ports := []string{"/dev/ttyS0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyS1"}
	ranked := rankCandidates(ports)

	want := []string{"/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyS0", "/dev/ttyS1"}
	for i := range want {
		if ranked[i] != want[i] {
			t.Fatalf("ranked = %v, want %v", ranked, want)
		}
	}
}
