package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/app/dispatcher"
	"github.com/coachpo/atomictrader/internal/app/strategies"
	"github.com/coachpo/atomictrader/internal/domain/event"
	"github.com/coachpo/atomictrader/internal/domain/mode"
	"github.com/coachpo/atomictrader/internal/infra/config"
	"github.com/coachpo/atomictrader/internal/observability"
)

func applyFlagOverrides(cfg *config.AppConfig, opts cliOptions) error {
	if raw := strings.TrimSpace(opts.mode); raw != "" {
		parsed, err := mode.Parse(raw)
		if err != nil {
			return fmt.Errorf("-mode: %w", err)
		}
		cfg.Startup.Mode = parsed
	}
	if names := splitStrategies(opts.strategies); len(names) > 0 {
		cfg.Startup.Strategies = names
	}
	return nil
}

func splitStrategies(raw string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// runStartup applies the configured run mode. Live modes start the selected
// strategies once the venue is connected; every other mode settles on Idle.
func runStartup(ctx context.Context, d *dispatcher.Dispatcher, registry *strategies.Registry, cfg config.StartupConfig) error {
	if !cfg.Mode.Live() {
		return d.SetMode(ctx, mode.Idle)
	}
	if len(cfg.Strategies) == 0 {
		return errs.New("startup", errs.CodeConfiguration,
			errs.WithMode(cfg.Mode.Name()),
			errs.WithMessage("no strategies selected"),
			errs.WithRemediation("pass -strategies or set startup.strategies"))
	}

	selected := make([]string, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		if _, err := registry.Create(name); err != nil {
			return fmt.Errorf("resolve strategy: %w", err)
		}
		selected = append(selected, name)
	}

	if err := d.SetMode(ctx, cfg.Mode); err != nil {
		return fmt.Errorf("set mode %s: %w", cfg.Mode, err)
	}
	assistant := d.Trader().Assistant()
	for _, name := range selected {
		s, err := registry.Create(name)
		if err != nil {
			return fmt.Errorf("resolve strategy: %w", err)
		}
		if err := assistant.AddStrategy(ctx, s); err != nil {
			return fmt.Errorf("add strategy %s: %w", name, err)
		}
	}
	return nil
}

type logListener struct {
	logger observability.Logger
}

func newLogListener(logger observability.Logger) *logListener {
	return &logListener{logger: logger}
}

func (l *logListener) ModelChanged(_ context.Context, evt event.Type, value any) error {
	l.logger.Info("model changed",
		observability.F("event", evt.String()),
		observability.F("value", fmt.Sprint(value)))
	return nil
}
