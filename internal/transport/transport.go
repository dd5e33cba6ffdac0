// Package transport implements T-MIN, the PMU-30 reliable datagram layer
// on top of internal/frame: single-outstanding-window ACK/retransmit for
// command/response RPC, a RESET handshake, and an unreliable side
// channel for telemetry and stream control. Grounded on
// internal/cnl/handshake.go's context-deadline handshake shape and on
// internal/transport.AsyncTx's fan-in writer for the unreliable lane,
// generalized from CAN-frame batching to a request/ACK state machine.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rakyury/pmu30-host/internal/frame"
	"github.com/rakyury/pmu30-host/internal/metrics"
	"github.com/rakyury/pmu30-host/internal/protoerr"
)

// Transport-internal frame types (distinct from the application command
// catalogue, which is carried inside a reliable/unreliable body).
const (
	typeReliable   byte = 0x01
	typeUnreliable byte = 0x02
	typeAck        byte = 0x03
	typeReset      byte = 0x04
	typeResetAck   byte = 0x05
)

// RetxTimeout and MaxRetries are T-MIN's default retransmit schedule
// (spec.md §4.5's recommended values).
const (
	RetxTimeout = 150 * time.Millisecond
	MaxRetries  = 5
)

// AppFrame is one application-level datagram delivered to the caller:
// the command catalogue ID plus its body, and whether it arrived over
// the reliable or unreliable lane.
type AppFrame struct {
	Reliable bool
	Cmd      byte
	Payload  []byte
}

type outstanding struct {
	seq   uint8
	done  chan struct{}
	acked bool
}

// Transport drives T-MIN over an io.ReadWriter link. One Transport must
// not be shared between concurrently-issuing callers for QueueReliable
// (the spec's "only one in-flight reliable command at a time" session
// invariant); Poll must run from a single goroutine.
type Transport struct {
	rw  io.ReadWriter
	buf bytes.Buffer

	mu            sync.Mutex
	nextSeqOut    uint8
	expectedSeqIn uint8
	resetDone     bool
	out           *outstanding
	resetAckCh    chan struct{}

	inbox        chan AppFrame
	unreliableTx *AsyncTx
}

// New constructs a Transport over rw. ctx bounds the lifetime of the
// unreliable-lane writer goroutine.
func New(ctx context.Context, rw io.ReadWriter) *Transport {
	t := &Transport{
		rw:    rw,
		inbox: make(chan AppFrame, 64),
	}
	t.unreliableTx = NewAsyncTx(ctx, 32, func(fr []byte) error {
		_, err := t.rw.Write(fr)
		return err
	}, Hooks{
		OnError: func(err error) { metrics.IncError(metrics.ErrTransport) },
		OnDrop:  func() error { return fmt.Errorf("transport: unreliable lane full, frame dropped") },
	})
	return t
}

// QueueReliable sends cmd/payload over the reliable lane and blocks until
// it is ACKed and the matching application response frame has arrived,
// retransmitting on RetxTimeout up to MaxRetries. It honors ctx's
// deadline: on expiry the outstanding slot is cleared and
// ErrTransportTimeout is returned.
//
// QueueReliable is the host-initiated request/response primitive: it
// assumes nothing else is reading Inbox for the duration of the call, so
// the first frame to arrive after the ACK is taken as the reply. A
// responder replying to an already-received request (internal/emulator's
// dispatchLoop) must use SendReliable instead, or it will steal the next
// inbound request frame out from under its own dispatch loop.
func (t *Transport) QueueReliable(ctx context.Context, cmd byte, payload []byte) (AppFrame, error) {
	if err := t.SendReliable(ctx, cmd, payload); err != nil {
		return AppFrame{}, err
	}
	return t.awaitResponse(ctx)
}

// SendReliable sends cmd/payload over the reliable lane and blocks until
// it is ACKed, retransmitting on RetxTimeout up to MaxRetries, then
// returns. Unlike QueueReliable it does not wait for or consume an
// application response frame, so it is safe to call from a loop that is
// itself reading Inbox to dispatch requests (internal/emulator's
// dispatchLoop uses it to send replies).
func (t *Transport) SendReliable(ctx context.Context, cmd byte, payload []byte) error {
	t.mu.Lock()
	seq := t.nextSeqOut
	t.nextSeqOut++
	body := make([]byte, 2+len(payload))
	body[0] = seq
	body[1] = cmd
	copy(body[2:], payload)
	fr := frame.Encode(typeReliable, body)

	o := &outstanding{seq: seq, done: make(chan struct{})}
	t.out = o
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.out == o {
			t.out = nil
		}
		t.mu.Unlock()
	}()

	bo := backoff.NewConstantBackOff(RetxTimeout)
	attempts := 0
	for {
		if _, err := t.rw.Write(fr); err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		select {
		case <-o.done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("transport: %w: %v", protoerr.ErrTransportTimeout, ctx.Err())
		case <-time.After(bo.NextBackOff()):
			attempts++
			if attempts > MaxRetries {
				metrics.IncTransportTimeout()
				return fmt.Errorf("transport: %w: %d retries exhausted", protoerr.ErrTransportTimeout, MaxRetries)
			}
			metrics.IncTransportRetransmit()
		}
	}
}

// awaitResponse waits for the application frame the device sends after
// acknowledging a reliable command.
func (t *Transport) awaitResponse(ctx context.Context) (AppFrame, error) {
	select {
	case af := <-t.inbox:
		return af, nil
	case <-ctx.Done():
		return AppFrame{}, fmt.Errorf("transport: %w: %v", protoerr.ErrTransportTimeout, ctx.Err())
	}
}

// SendUnreliable fire-and-forgets cmd/payload over the unreliable lane;
// used for START_STREAM, STOP_STREAM and telemetry.
func (t *Transport) SendUnreliable(cmd byte, payload []byte) error {
	body := make([]byte, 1+len(payload))
	body[0] = cmd
	copy(body[1:], payload)
	return t.unreliableTx.SendFrame(frame.Encode(typeUnreliable, body))
}

// Inbox exposes frames delivered outside of QueueReliable's own response
// wait (telemetry, unsolicited unreliable frames).
func (t *Transport) Inbox() <-chan AppFrame { return t.inbox }

// Reset issues a RESET token and blocks until the peer replies with
// RESET_ACK, retrying on RetxTimeout up to MaxRetries.
func (t *Transport) Reset(ctx context.Context) error {
	bo := backoff.NewConstantBackOff(RetxTimeout)
	attempts := 0
	for {
		if _, err := t.rw.Write(frame.Encode(typeReset, nil)); err != nil {
			return fmt.Errorf("transport: write reset: %w", err)
		}
		select {
		case <-t.resetAcked():
			t.mu.Lock()
			t.resetDone = true
			t.expectedSeqIn = 0
			t.mu.Unlock()
			return nil
		case <-ctx.Done():
			return fmt.Errorf("transport: %w: %v", protoerr.ErrTransportReset, ctx.Err())
		case <-time.After(bo.NextBackOff()):
			attempts++
			if attempts > MaxRetries {
				return fmt.Errorf("transport: %w: reset not acked", protoerr.ErrTransportTimeout)
			}
		}
	}
}

// resetAcked returns a channel that Poll closes once a RESET_ACK arrives,
// lazily creating it per Reset call.
func (t *Transport) resetAcked() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resetAckCh == nil {
		t.resetAckCh = make(chan struct{})
	}
	return t.resetAckCh
}

// Poll reads available bytes from the link, decodes frames, dispatches
// ACKs to the outstanding slot, and delivers application frames to the
// caller via Inbox (or QueueReliable's response wait). It should run
// from a single dedicated goroutine for the lifetime of the connection.
func (t *Transport) Poll(ctx context.Context) error {
	readBuf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := t.rw.Read(readBuf)
		if n > 0 {
			t.buf.Write(readBuf[:n])
			for {
				fr, _, ferr := frame.Decode(&t.buf)
				if fr == nil && ferr == nil {
					break
				}
				if ferr != nil {
					continue
				}
				t.dispatch(fr)
			}
		}
		if err != nil {
			return fmt.Errorf("transport: read: %w", err)
		}
	}
}

func (t *Transport) dispatch(fr *frame.Frame) {
	switch fr.Type {
	case typeAck:
		if len(fr.Payload) < 1 {
			return
		}
		seq := fr.Payload[0]
		t.mu.Lock()
		if t.out != nil && t.out.seq == seq && !t.out.acked {
			t.out.acked = true
			close(t.out.done)
		}
		t.mu.Unlock()
	case typeReliable:
		if len(fr.Payload) < 2 {
			return
		}
		seq, cmd, body := fr.Payload[0], fr.Payload[1], fr.Payload[2:]
		t.mu.Lock()
		expected := t.expectedSeqIn
		t.mu.Unlock()
		_, _ = t.rw.Write(frame.Encode(typeAck, []byte{seq}))
		switch {
		case seq == expected:
			t.mu.Lock()
			t.expectedSeqIn++
			t.mu.Unlock()
			t.inbox <- AppFrame{Reliable: true, Cmd: cmd, Payload: append([]byte(nil), body...)}
		case seq == expected-1:
			metrics.IncTransportDuplicate()
		default:
			metrics.IncError(metrics.ErrTransport)
		}
	case typeUnreliable:
		if len(fr.Payload) < 1 {
			return
		}
		cmd, body := fr.Payload[0], fr.Payload[1:]
		select {
		case t.inbox <- AppFrame{Reliable: false, Cmd: cmd, Payload: append([]byte(nil), body...)}:
		default:
			metrics.IncTelemetryDropped()
		}
	case typeReset:
		t.mu.Lock()
		t.expectedSeqIn = 0
		t.mu.Unlock()
		_, _ = t.rw.Write(frame.Encode(typeResetAck, nil))
	case typeResetAck:
		t.mu.Lock()
		if t.resetAckCh != nil {
			close(t.resetAckCh)
			t.resetAckCh = nil
		}
		t.mu.Unlock()
	}
}

// Close releases the unreliable-lane writer. The underlying link is owned
// by the caller and is not closed here.
func (t *Transport) Close() { t.unreliableTx.Close() }
