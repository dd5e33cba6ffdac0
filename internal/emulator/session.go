package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/rakyury/pmu30-host/internal/client"
	"github.com/rakyury/pmu30-host/internal/emulator/store"
	"github.com/rakyury/pmu30-host/internal/logging"
	"github.com/rakyury/pmu30-host/internal/metrics"
	"github.com/rakyury/pmu30-host/internal/transport"
)

// Sentinel errors, mirroring the teacher's internal/server/errors.go
// small wrapped-sentinel-plus-metric-label pattern.
var (
	ErrListen = errors.New("emulator: listen")
	ErrAccept = errors.New("emulator: accept")
)

// Server accepts TCP sessions speaking the PMU-30 wire protocol, one
// Device per connection sharing a common Store. Grounded on the
// teacher's internal/server.Server accept loop, generalized from a
// CAN hub fan-out to one emulated device per session (no broadcast: an
// emulator session is a point-to-point stand-in for a serial port, not
// a multi-subscriber bus).
type Server struct {
	mu       sync.Mutex
	addr     string
	store    store.Store
	listener net.Listener
	readyCh  chan struct{}
	readyOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger

	sessions atomic.Int64
}

// NewServer returns a Server persisting its flash record in st (an
// emulator.store.MemStore or RedisStore).
func NewServer(addr string, st store.Store) *Server {
	if addr == "" {
		addr = ":9876"
	}
	return &Server{addr: addr, store: st, readyCh: make(chan struct{}), logger: logging.L()}
}

func (s *Server) Ready() <-chan struct{} { return s.readyCh }

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListen, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("emulator_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("%w: %v", ErrAccept, err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSession(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and waits for active sessions to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// runSession wires one TCP connection to a fresh Transport and Device,
// tagging it with a UUID so overlapping cmd/pmu-test-runner iterations
// are distinguishable in the structured logs (the teacher uses a plain
// connection counter for the same role; the emulator uses the pack's
// satori/go.uuid instead since the session id is also surfaced to the
// host as GetInfo's serial field, not just a log label).
func (s *Server) runSession(ctx context.Context, conn net.Conn) {
	sessionID := uuid.NewV4().String()
	logger := s.logger.With("session", sessionID, "remote", conn.RemoteAddr().String())
	defer conn.Close()

	n := s.sessions.Add(1)
	metrics.SetActiveSessions(int(n))
	logger.Info("session_connected")
	defer func() {
		n := s.sessions.Add(-1)
		metrics.SetActiveSessions(int(n))
		logger.Info("session_disconnected")
	}()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr := transport.New(sessCtx, conn)
	dev := NewDevice(sessCtx, sessionID, s.store)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := tr.Poll(sessCtx); err != nil {
			metrics.IncError(metrics.ErrEmulatorIO)
			logger.Debug("session_poll_ended", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.dispatchLoop(sessCtx, tr, dev, logger)
	}()
	go s.streamLoop(sessCtx, tr, dev, logger)

	wg.Wait()
}

func (s *Server) dispatchLoop(ctx context.Context, tr *transport.Transport, dev *Device, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case af, ok := <-tr.Inbox():
			if !ok {
				return
			}
			for _, resp := range dev.Handle(ctx, af.Cmd, af.Payload) {
				if err := tr.SendReliable(ctx, resp.Cmd, resp.Payload); err != nil {
					logger.Debug("session_response_failed", "cmd", resp.Cmd, "error", err)
					return
				}
			}
		}
	}
}

// streamLoop periodically ticks the Device and pushes telemetry
// unreliably whenever START_STREAM is active, honoring STOP_STREAM and
// session teardown.
func (s *Server) streamLoop(ctx context.Context, tr *transport.Transport, dev *Device, logger *slog.Logger) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			streaming, _, _ := dev.Streaming()
			if !streaming {
				continue
			}
			pkt := dev.Tick(uint32(now.Sub(start).Milliseconds()))
			if err := tr.SendUnreliable(client.CmdTelemetry, pkt.Encode()); err != nil {
				metrics.IncTelemetryDropped()
				logger.Debug("telemetry_send_failed", "error", err)
				continue
			}
			metrics.IncTelemetrySent()
		}
	}
}
