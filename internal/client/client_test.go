package client

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rakyury/pmu30-host/internal/protoerr"
	"github.com/rakyury/pmu30-host/internal/transport"
)

// loopConn is an in-memory io.ReadWriter pair wired host<->device, mirroring
// internal/transport's own test harness so DeviceClient can be exercised
// end to end without a real link.
type loopConn struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  bytes.Buffer
}

func newLoopConn() *loopConn {
	c := &loopConn{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *loopConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.buf.Write(p)
	c.cond.Broadcast()
	return n, err
}

func (c *loopConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.buf.Len() == 0 {
		c.cond.Wait()
	}
	return c.buf.Read(p)
}

type duplex struct {
	r *loopConn
	w *loopConn
}

func (d duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d duplex) Write(p []byte) (int, error) { return d.w.Write(p) }

func pair() (hostLink, deviceLink *loopConn) {
	return newLoopConn(), newLoopConn()
}

func TestDecodeDeviceError(t *testing.T) {
	payload := append([]byte{0x07, 0x00, 3}, []byte("bad")...)
	err := decodeDeviceError(payload)
	var de *protoerr.DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("expected *protoerr.DeviceError, got %T", err)
	}
	if de.Code != 7 || de.Message != "bad" {
		t.Fatalf("DeviceError = %+v", de)
	}
}

func TestDecodeDeviceErrorMalformed(t *testing.T) {
	err := decodeDeviceError(nil)
	var de *protoerr.DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("expected *protoerr.DeviceError, got %T", err)
	}
}

func TestTrimZero(t *testing.T) {
	if got := trimZero([]byte{'a', 'b', 0, 'c'}); got != "ab" {
		t.Fatalf("trimZero = %q, want %q", got, "ab")
	}
}

func TestPauseResumeOnlyTransitionsWhileStreaming(t *testing.T) {
	c := &DeviceClient{}
	c.pause("noop")
	if c.StreamState() != StreamStopped {
		t.Fatalf("pause from STOPPED must be a no-op, got %s", c.StreamState())
	}
	c.streamState = StreamStreaming
	c.pause("set_config")
	if c.StreamState() != StreamPaused {
		t.Fatalf("StreamState() = %s, want PAUSED", c.StreamState())
	}
	c.resume()
	if c.StreamState() != StreamStreaming {
		t.Fatalf("StreamState() = %s, want STREAMING", c.StreamState())
	}
}

func TestPingRoundTrip(t *testing.T) {
	a, b := pair()
	hostSide := duplex{r: a, w: b}
	deviceSide := duplex{r: b, w: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostTr := transport.New(ctx, hostSide)
	deviceTr := transport.New(ctx, deviceSide)
	go hostTr.Poll(ctx)
	go deviceTr.Poll(ctx)
	go func() {
		for af := range deviceTr.Inbox() {
			if af.Cmd == CmdPing {
				_ = deviceTr.SendReliable(context.Background(), CmdPong, nil)
			}
		}
	}()

	host := New(hostTr)
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	if err := host.Ping(reqCtx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestGetInfoDecodesFields(t *testing.T) {
	a, b := pair()
	hostSide := duplex{r: a, w: b}
	deviceSide := duplex{r: b, w: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostTr := transport.New(ctx, hostSide)
	deviceTr := transport.New(ctx, deviceSide)
	go hostTr.Poll(ctx)
	go deviceTr.Poll(ctx)
	go func() {
		for af := range deviceTr.Inbox() {
			if af.Cmd == CmdGetInfo {
				resp := make([]byte, 4+16+32)
				resp[0], resp[1], resp[2], resp[3] = 1, 2, 3, 9
				copy(resp[4:20], "SN-0001")
				copy(resp[20:52], "pmu30-bench")
				_ = deviceTr.SendReliable(context.Background(), CmdInfoResp, resp)
			}
		}
	}()

	host := New(hostTr)
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	info, err := host.GetInfo(reqCtx)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.FirmwareVersion.Major != 1 || info.FirmwareVersion.Minor != 2 || info.FirmwareVersion.Patch != 3 {
		t.Fatalf("FirmwareVersion = %+v", info.FirmwareVersion)
	}
	if info.Serial != "SN-0001" || info.Name != "pmu30-bench" {
		t.Fatalf("Serial/Name = %q/%q", info.Serial, info.Name)
	}
}

func TestStopStreamDrainsInFlightTelemetry(t *testing.T) {
	a, b := pair()
	hostSide := duplex{r: a, w: b}
	deviceSide := duplex{r: b, w: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostTr := transport.New(ctx, hostSide)
	deviceTr := transport.New(ctx, deviceSide)
	go hostTr.Poll(ctx)
	go deviceTr.Poll(ctx)

	// Simulate a device that keeps pushing a couple more TELEMETRY
	// frames after STOP_STREAM before it actually unsubscribes.
	go func() {
		for af := range deviceTr.Inbox() {
			if af.Cmd == CmdStopStream {
				for i := 0; i < 3; i++ {
					_ = deviceTr.SendUnreliable(CmdTelemetry, []byte{byte(i)})
				}
			}
		}
	}()

	host := New(hostTr)
	host.streamState = StreamStreaming
	if err := host.StopStream(); err != nil {
		t.Fatalf("StopStream: %v", err)
	}
	if host.StreamState() != StreamStopped {
		t.Fatalf("StreamState() = %s, want STOPPED", host.StreamState())
	}
	select {
	case af := <-hostTr.Inbox():
		t.Fatalf("expected StopStream to have drained in-flight telemetry, got %+v", af)
	default:
	}
}

func TestCallTranslatesErrorFrame(t *testing.T) {
	a, b := pair()
	hostSide := duplex{r: a, w: b}
	deviceSide := duplex{r: b, w: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostTr := transport.New(ctx, hostSide)
	deviceTr := transport.New(ctx, deviceSide)
	go hostTr.Poll(ctx)
	go deviceTr.Poll(ctx)
	go func() {
		for af := range deviceTr.Inbox() {
			if af.Cmd == CmdPing {
				errPayload := append([]byte{0x2A, 0x00, 5}, []byte("nope!")...)
				_ = deviceTr.SendReliable(context.Background(), CmdError, errPayload)
			}
		}
	}()

	host := New(hostTr)
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	err := host.Ping(reqCtx)
	var de *protoerr.DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("expected *protoerr.DeviceError, got %v", err)
	}
	if de.Code != 0x2A || de.Message != "nope!" {
		t.Fatalf("DeviceError = %+v", de)
	}
}
