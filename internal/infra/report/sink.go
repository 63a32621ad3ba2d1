// Package report implements the togglable destination for operational and error events.
package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/infra/telemetry"
	"github.com/coachpo/atomictrader/internal/observability"
)

// Severity classifies report records.
type Severity string

const (
	// SeverityInfo marks operational records.
	SeverityInfo Severity = "info"
	// SeverityError marks failures.
	SeverityError Severity = "error"
)

const errorSource = "error"

// Record is a single entry emitted to the sink.
type Record struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Code     errs.Code `json:"code,omitempty"`
}

// Config sizes the sink.
type Config struct {
	// RecentBuffer is the number of records retained for inspection.
	RecentBuffer int
	// RatePerSecond caps accepted informational records; zero disables
	// limiting. Errors are never rate limited.
	RatePerSecond float64
	// Burst is the limiter bucket size; defaults to 1 when limiting.
	Burst int
}

// Sink records operational events and errors. Informational records are
// suppressed while the sink is disabled and subject to the rate limit;
// errors are always accepted.
type Sink struct {
	enabled atomic.Bool
	logger  observability.Logger
	limiter *rate.Limiter
	now     func() time.Time

	mu       sync.Mutex
	capacity int
	recent   []Record

	recordsCounter metric.Int64Counter
}

// New constructs an enabled sink.
func New(cfg Config, logger observability.Logger) *Sink {
	if logger == nil {
		logger = observability.Log()
	}
	capacity := cfg.RecentBuffer
	if capacity <= 0 {
		capacity = 256
	}
	s := &Sink{
		logger:   logger,
		now:      time.Now,
		capacity: capacity,
		recent:   make([]Record, 0, capacity),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	s.enabled.Store(true)

	meter := otel.Meter("report")
	s.recordsCounter, _ = meter.Int64Counter("report.records",
		metric.WithDescription("Report records by outcome (emitted, suppressed, dropped)"),
		metric.WithUnit("{record}"))
	return s
}

// Enable turns informational reporting on.
func (s *Sink) Enable() {
	s.enabled.Store(true)
}

// Disable suppresses informational reporting.
func (s *Sink) Disable() {
	s.enabled.Store(false)
}

// Enabled reports whether informational records are accepted.
func (s *Sink) Enabled() bool {
	return s.enabled.Load()
}

// Report emits an informational record attributed to source.
func (s *Sink) Report(source, message string) {
	if !s.enabled.Load() {
		s.count(source, SeverityInfo, "suppressed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.count(source, SeverityInfo, "dropped")
		return
	}
	s.emit(Record{Source: source, Severity: SeverityInfo, Message: message})
}

// ReportError records a failure. Nil errors are ignored.
func (s *Sink) ReportError(err error) {
	if err == nil {
		return
	}
	rec := Record{Source: errorSource, Severity: SeverityError, Message: err.Error()}
	if e := asEnvelope(err); e != nil {
		rec.Code = e.Code
		if e.Component != "" {
			rec.Source = e.Component
		}
	}
	s.emit(rec)
}

// Recent returns a copy of the retained records, oldest first.
func (s *Sink) Recent() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recent))
	copy(out, s.recent)
	return out
}

// Errors returns the retained error records.
func (s *Sink) Errors() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range s.recent {
		if rec.Severity == SeverityError {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Sink) emit(rec Record) {
	rec.ID = uuid.NewString()
	rec.Time = s.now()

	s.mu.Lock()
	if len(s.recent) >= s.capacity {
		// Drop oldest record to make space.
		copy(s.recent[0:], s.recent[1:])
		s.recent[len(s.recent)-1] = rec
	} else {
		s.recent = append(s.recent, rec)
	}
	s.mu.Unlock()

	fields := []observability.Field{
		observability.F("source", rec.Source),
		observability.F("record_id", rec.ID),
	}
	if rec.Severity == SeverityError {
		if rec.Code != "" {
			fields = append(fields, observability.F("code", string(rec.Code)))
		}
		s.logger.Error(rec.Message, fields...)
	} else {
		s.logger.Info(rec.Message, fields...)
	}
	s.count(rec.Source, rec.Severity, "emitted")
}

func (s *Sink) count(source string, severity Severity, result string) {
	if s.recordsCounter == nil {
		return
	}
	s.recordsCounter.Add(context.Background(), 1,
		metric.WithAttributes(telemetry.ReportAttributes(source, string(severity), result)...))
}

func asEnvelope(err error) *errs.E {
	var e *errs.E
	if errors.As(err, &e) {
		return e
	}
	return nil
}
