// Package venue maintains the transport session to the trading venue. Message
// encoding is owned by the venue adapter; the session only carries frames.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/infra/telemetry"
	"github.com/coachpo/atomictrader/internal/observability"
)

const (
	component         = "venue"
	pingInterval      = 30 * time.Second
	pingTimeout       = 5 * time.Second
	readLimit         = 2 * 1024 * 1024
	defaultRetryDelay = 500 * time.Millisecond
)

// Handler receives raw frames read from the venue.
type Handler func([]byte)

// Config describes how to reach the venue.
type Config struct {
	URL           string
	DialTimeout   time.Duration
	MaxAttempts   int
	RetryInterval time.Duration
	Handler       Handler
}

// Session is a single websocket session to the venue. Connect and Disconnect
// are idempotent.
type Session struct {
	cfg Config

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	loops  sync.WaitGroup

	connected atomic.Bool

	opsCounter metric.Int64Counter
}

// NewSession constructs an unconnected session.
func NewSession(cfg Config) *Session {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryDelay
	}
	s := &Session{cfg: cfg}
	meter := otel.Meter("venue")
	s.opsCounter, _ = meter.Int64Counter("venue.operations",
		metric.WithDescription("Venue connect/disconnect operations by result"),
		metric.WithUnit("{operation}"))
	return s
}

// Connected reports whether the session currently holds an open connection.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Connect dials the venue, retrying with exponential backoff up to MaxAttempts.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && s.connected.Load() {
		return nil
	}
	s.teardownLocked()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryInterval
	policy.MaxInterval = 8 * s.cfg.RetryInterval

	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
		conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, nil)
		if err != nil {
			observability.Log().Warn("venue dial failed",
				observability.F("url", s.cfg.URL),
				observability.F("error", err))
			return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
		}
		return conn, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(s.cfg.MaxAttempts)))
	if err != nil {
		s.record(ctx, "connect", telemetry.ResultError)
		return errs.New(component, errs.CodeConnectivity,
			errs.WithMessage("connect to venue failed"),
			errs.WithField("url", s.cfg.URL),
			errs.WithCause(err))
	}

	conn.SetReadLimit(readLimit)
	loopCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.connected.Store(true)

	s.loops.Add(2)
	go func() {
		defer s.loops.Done()
		s.readLoop(loopCtx, conn)
	}()
	go func() {
		defer s.loops.Done()
		s.pingLoop(loopCtx, conn)
	}()

	s.record(ctx, "connect", telemetry.ResultSuccess)
	observability.Log().Info("venue connected", observability.F("url", s.cfg.URL))
	return nil
}

// Disconnect closes the session. It is a no-op when not connected.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	conn := s.conn
	err := conn.Close(websocket.StatusNormalClosure, "disconnect")
	s.teardownLocked()

	if err != nil && !isClosedErr(err) {
		s.record(ctx, "disconnect", telemetry.ResultError)
		return errs.New(component, errs.CodeConnectivity,
			errs.WithMessage("disconnect from venue failed"),
			errs.WithCause(err))
	}
	s.record(ctx, "disconnect", telemetry.ResultSuccess)
	observability.Log().Info("venue disconnected", observability.F("url", s.cfg.URL))
	return nil
}

// teardownLocked stops the session loops. Caller holds s.mu.
func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		_ = s.conn.CloseNow()
		s.conn = nil
	}
	s.connected.Store(false)
	s.loops.Wait()
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !isClosedErr(err) {
				observability.Log().Warn("venue read failed", observability.F("error", err))
			}
			s.connected.Store(false)
			return
		}
		if s.cfg.Handler != nil {
			s.cfg.Handler(data)
		}
	}
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					observability.Log().Warn("venue ping failed", observability.F("error", err))
					s.connected.Store(false)
				}
				return
			}
		}
	}
}

func (s *Session) record(ctx context.Context, operation, result string) {
	if s.opsCounter == nil {
		return
	}
	s.opsCounter.Add(ctx, 1, metric.WithAttributes(telemetry.OperationResultAttributes(operation, result)...))
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
