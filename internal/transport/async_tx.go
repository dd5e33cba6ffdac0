package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// AsyncTx funnels unreliable writes through a single goroutine (fan-in),
// giving SendUnreliable non-blocking enqueue semantics: if the internal
// buffer is full, the configured OnDrop hook fires and its error (usually
// an overflow sentinel) is returned, so a slow link never blocks a
// producer issuing START_STREAM/STOP_STREAM or telemetry datagrams.
// Grounded on the teacher's internal/transport.AsyncTx, generalized from
// can.Frame to a raw wire-frame []byte.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func([]byte) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior without duplicating the goroutine and
// buffer plumbing per caller.
type Hooks struct {
	OnError func(error)
	OnAfter func()
	OnDrop  func() error
}

// ErrAsyncTxClosed is returned by SendFrame once Close has completed.
var ErrAsyncTxClosed = errors.New("transport: async tx closed")

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
func NewAsyncTx(parent context.Context, buf int, send func([]byte) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan []byte, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case fr, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(fr); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// SendFrame queues fr for asynchronous transmission, or returns the drop
// error if the buffer is full.
func (a *AsyncTx) SendFrame(fr []byte) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- fr:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the worker and waits for pending operations to finish.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
