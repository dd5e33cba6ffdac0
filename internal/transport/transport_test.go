package transport

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rakyury/pmu30-host/internal/frame"
)

// loopConn is an in-memory io.ReadWriter pair wired host<->device so the
// transport state machine can be exercised without a real link.
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

func pair() (hostLink, deviceLink *loopConn) {
	return newLoopConn(), newLoopConn()
}

type duplex struct {
	r *loopConn
	w *loopConn
}

func (d duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d duplex) Write(p []byte) (int, error) { return d.w.Write(p) }

func TestQueueReliableGetsDeviceResponse(t *testing.T) {
	a, b := pair()
	hostSide := duplex{r: a, w: b}
	deviceSide := duplex{r: b, w: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := transportFor(ctx, hostSide)
	device := transportFor(ctx, deviceSide)
	go host.Poll(ctx)
	go device.Poll(ctx)

	// Device echoes PONG whenever it sees a PING application frame, using
	// SendReliable since it is replying to an already-received request
	// rather than initiating one of its own.
	go func() {
		for af := range device.Inbox() {
			if af.Cmd == 0x01 {
				_ = device.SendReliable(context.Background(), 0x02, nil)
			}
		}
	}()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	resp, err := host.QueueReliable(reqCtx, 0x01, nil)
	if err != nil {
		t.Fatalf("QueueReliable: %v", err)
	}
	if resp.Cmd != 0x02 {
		t.Fatalf("resp.Cmd = 0x%02X, want 0x02", resp.Cmd)
	}
}

func transportFor(ctx context.Context, rw duplex) *Transport {
	return New(ctx, rw)
}

// TestSendReliableDoesNotStealTheNextInboundRequest reproduces a
// dispatch-loop responder (internal/emulator's shape): it reads each
// request off Inbox and replies with SendReliable. If the responder used
// QueueReliable instead, replying to the first request would block on
// awaitResponse and swallow the second request's frame, and the host's
// second QueueReliable call would time out.
func TestSendReliableDoesNotStealTheNextInboundRequest(t *testing.T) {
	a, b := pair()
	hostSide := duplex{r: a, w: b}
	deviceSide := duplex{r: b, w: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := transportFor(ctx, hostSide)
	device := transportFor(ctx, deviceSide)
	go host.Poll(ctx)
	go device.Poll(ctx)

	go func() {
		for af := range device.Inbox() {
			reply := af.Cmd + 1
			_ = device.SendReliable(context.Background(), reply, nil)
		}
	}()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	if resp, err := host.QueueReliable(reqCtx, 0x01, nil); err != nil || resp.Cmd != 0x02 {
		t.Fatalf("first exchange: resp=%+v err=%v", resp, err)
	}
	if resp, err := host.QueueReliable(reqCtx, 0x10, nil); err != nil || resp.Cmd != 0x11 {
		t.Fatalf("second exchange: resp=%+v err=%v", resp, err)
	}
}

func TestDispatchDeduplicatesRetransmittedReliableFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	link := newLoopConn()
	tr := New(ctx, duplex{r: link, w: link})

	fr := &frame.Frame{Type: typeReliable, Payload: []byte{0, 0x01}}
	tr.dispatch(fr)
	select {
	case af := <-tr.inbox:
		if af.Cmd != 0x01 {
			t.Fatalf("Cmd = 0x%02X, want 0x01", af.Cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("expected first delivery")
	}

	tr.dispatch(fr) // retransmit of the same sequence
	select {
	case <-tr.inbox:
		t.Fatal("duplicate frame must not be redelivered to the application")
	case <-time.After(50 * time.Millisecond):
	}
}
