// Package monitor exposes the auxiliary status endpoint.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coachpo/atomictrader/internal/infra/report"
	"github.com/coachpo/atomictrader/internal/observability"
)

// Status is the coordination snapshot served on /status.
type Status struct {
	Mode             string     `json:"mode"`
	ModeName         string     `json:"modeName"`
	ReportingEnabled bool       `json:"reportingEnabled"`
	VenueConnected   bool       `json:"venueConnected"`
	Strategies       []string   `json:"strategies"`
	ClockServer      string     `json:"clockServer,omitempty"`
	ClockOffset      string     `json:"clockOffset,omitempty"`
	ClockSyncedAt    *time.Time `json:"clockSyncedAt,omitempty"`
}

// Sources supplies the data served by the endpoint.
type Sources struct {
	Status  func() Status
	Reports func() []report.Record
	// Catalog lists the strategies available to the trader, in any
	// JSON-encodable shape.
	Catalog func() any
}

// Server serves the monitoring routes once started.
type Server struct {
	addr    string
	handler http.Handler

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// New constructs an unstarted server bound to addr.
func New(addr string, sources Sources) *Server {
	return &Server{addr: addr, handler: NewHandler(sources)}
}

// Handler returns the routes without a listener, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background. Calling Start on a
// running server is a no-op; a failed bind may be retried.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.listener = ln
	observability.Log().Info("monitor endpoint listening", observability.F("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Log().Error("monitor endpoint stopped", observability.F("error", err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("monitor shutdown: %w", err)
	}
	return nil
}
