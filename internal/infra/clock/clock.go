// Package clock provides the network-synchronised time source used by live modes.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/observability"
)

const component = "clock"

// Querier measures the offset between the local clock and a time server.
type Querier interface {
	Offset(ctx context.Context, server string, timeout time.Duration) (time.Duration, error)
}

// NTPQuerier queries servers over NTP.
type NTPQuerier struct{}

// Offset performs a single NTP exchange and returns the validated clock offset.
func (NTPQuerier) Offset(_ context.Context, server string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("ntp query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response %s: %w", server, err)
	}
	return resp.ClockOffset, nil
}

// Config selects servers and bounds the synchronisation attempt.
type Config struct {
	Servers     []string
	Timeout     time.Duration
	MaxAttempts int
	// RetryInterval is the initial backoff between attempts against one server.
	RetryInterval time.Duration
}

// Clock reports network-corrected time. A Clock is immutable once built.
type Clock struct {
	offset   time.Duration
	server   string
	syncedAt time.Time
}

// New synchronises against the first reachable server. Each server is tried
// up to MaxAttempts times with exponential backoff before moving on.
func New(ctx context.Context, cfg Config, q Querier) (*Clock, error) {
	if q == nil {
		q = NTPQuerier{}
	}
	if len(cfg.Servers) == 0 {
		return nil, errs.New(component, errs.CodeTimeSource, errs.WithMessage("no time servers configured"))
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	var lastErr error
	for _, server := range cfg.Servers {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = interval
		policy.MaxInterval = 4 * interval

		offset, err := backoff.Retry(ctx, func() (time.Duration, error) {
			return q.Offset(ctx, server, cfg.Timeout)
		}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(attempts)))
		if err == nil {
			observability.Log().Info("clock synchronised",
				observability.F("server", server),
				observability.F("offset", offset.String()))
			return &Clock{offset: offset, server: server, syncedAt: time.Now()}, nil
		}
		lastErr = err
		observability.Log().Warn("clock server unreachable",
			observability.F("server", server),
			observability.F("error", err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errs.New(component, errs.CodeTimeSource,
		errs.WithMessage("network time source unreachable"),
		errs.WithField("servers", fmt.Sprint(cfg.Servers)),
		errs.WithCause(lastErr))
}

// Now returns the current network-corrected time.
func (c *Clock) Now() time.Time {
	return time.Now().Add(c.offset)
}

// Offset is the correction applied to the local clock.
func (c *Clock) Offset() time.Duration {
	return c.offset
}

// Server is the time server the clock synchronised against.
func (c *Clock) Server() string {
	return c.server
}

// SyncedAt is the local time of synchronisation.
func (c *Clock) SyncedAt() time.Time {
	return c.syncedAt
}
