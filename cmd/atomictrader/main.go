// Command atomictrader runs the trading mode coordinator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/coachpo/atomictrader/internal/app/dispatcher"
	"github.com/coachpo/atomictrader/internal/app/strategies"
	"github.com/coachpo/atomictrader/internal/app/trader"
	"github.com/coachpo/atomictrader/internal/domain/mode"
	"github.com/coachpo/atomictrader/internal/infra/clock"
	"github.com/coachpo/atomictrader/internal/infra/config"
	"github.com/coachpo/atomictrader/internal/infra/monitor"
	"github.com/coachpo/atomictrader/internal/infra/report"
	"github.com/coachpo/atomictrader/internal/infra/telemetry"
	"github.com/coachpo/atomictrader/internal/infra/venue"
	"github.com/coachpo/atomictrader/internal/observability"
)

const (
	defaultConfigPath        = "config/app.yaml"
	monitorShutdownTimeout   = 2 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

type cliOptions struct {
	configPath string
	mode       string
	strategies string
}

func main() {
	opts := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, resolveConfigPath(opts.configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlagOverrides(&appCfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(2)
	}

	zapLogger, err := observability.BuildZap(appCfg.Logging.Level, appCfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewZapLogger(zapLogger.With(zap.String("service", "atomictrader")))
	observability.SetLogger(logger)
	if !loadedFromFile {
		logger.Info("configuration file not found, using defaults")
	}
	logger.Info("configuration initialised",
		observability.F("environment", string(appCfg.Environment)),
		observability.F("startup_mode", string(appCfg.Startup.Mode)))

	telemetryProvider, err := initTelemetry(ctx, appCfg)
	if err != nil {
		logger.Error("initialise telemetry", observability.F("error", err))
		os.Exit(1)
	}

	sink := report.New(report.Config{
		RecentBuffer:  appCfg.Report.RecentBuffer,
		RatePerSecond: appCfg.Report.RatePerSecond,
		Burst:         appCfg.Report.Burst,
	}, logger)

	session := venue.NewSession(venue.Config{
		URL:         appCfg.Venue.URL,
		DialTimeout: appCfg.Venue.DialTimeout,
		MaxAttempts: appCfg.Venue.MaxAttempts,
	})

	registry := strategies.DefaultRegistry()
	var d *dispatcher.Dispatcher
	monitorServer := monitor.New(appCfg.Monitor.Addr, monitor.Sources{
		Status:  func() monitor.Status { return statusOf(d) },
		Reports: sink.Recent,
		Catalog: func() any { return registry.Catalog() },
	})

	d = dispatcher.New(dispatcher.Options{
		Sink: sink,
		Clock: func(ctx context.Context) (*clock.Clock, error) {
			return clock.New(ctx, clock.Config{
				Servers:     appCfg.Clock.Servers,
				Timeout:     appCfg.Clock.Timeout,
				MaxAttempts: appCfg.Clock.MaxAttempts,
			}, nil)
		},
		Trader: func(n trader.Notifier) *trader.Trader {
			return trader.New(session, n)
		},
		Monitor:     monitorServer,
		GracePeriod: appCfg.Shutdown.GracePeriod,
		Exit: func(code int) {
			flush(monitorServer, telemetryProvider, zapLogger)
			os.Exit(code)
		},
	})
	d.Register(newLogListener(logger))

	if err := runStartup(ctx, d, registry, appCfg.Startup); err != nil {
		logger.Error("startup failed", observability.F("error", err))
		flush(monitorServer, telemetryProvider, zapLogger)
		os.Exit(1)
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		<-ctx.Done()
		logger.Info("shutdown signal received", observability.F("mode", string(d.Mode())))
		d.RequestShutdown(context.Background())
	})
	logger.Info("coordinator started; awaiting shutdown signal",
		observability.F("mode", d.Mode().Name()),
		observability.F("monitor_addr", monitorServer.Addr()))
	lifecycle.Wait()
}

func parseFlags() cliOptions {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.StringVar(&opts.mode, "mode", "", "Run mode: trade, forwardtest, closingpositions or idle (overrides startup.mode)")
	flag.StringVar(&opts.strategies, "strategies", "", "Comma-separated strategy names to start (overrides startup.strategies)")
	flag.Parse()
	return opts
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func initTelemetry(ctx context.Context, appCfg config.AppConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if appCfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = appCfg.Telemetry.OTLPEndpoint
	}
	if appCfg.Telemetry.ServiceName != "" {
		telemetryCfg.ServiceName = appCfg.Telemetry.ServiceName
	}
	telemetryCfg.Environment = string(appCfg.Environment)
	telemetryCfg.OTLPInsecure = appCfg.Telemetry.OTLPInsecure
	telemetryCfg.EnableMetrics = appCfg.Telemetry.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if provider.Enabled() {
		observability.Log().Info("telemetry initialized",
			observability.F("endpoint", telemetryCfg.OTLPEndpoint),
			observability.F("service", telemetryCfg.ServiceName))
	} else {
		observability.Log().Info("telemetry disabled")
	}
	return provider, nil
}

func statusOf(d *dispatcher.Dispatcher) monitor.Status {
	if d == nil {
		return monitor.Status{Mode: string(mode.Idle), ModeName: mode.Idle.Name()}
	}
	current := d.Mode()
	status := monitor.Status{
		Mode:             string(current),
		ModeName:         current.Name(),
		ReportingEnabled: d.Sink().Enabled(),
	}
	status.Strategies = []string{}
	if t := d.ActiveTrader(); t != nil {
		assistant := t.Assistant()
		status.VenueConnected = assistant.Connected()
		status.Strategies = assistant.Strategies()
	}
	if c := d.Clock(); c != nil {
		syncedAt := c.SyncedAt()
		status.ClockServer = c.Server()
		status.ClockOffset = c.Offset().String()
		status.ClockSyncedAt = &syncedAt
	}
	return status
}

func flush(srv *monitor.Server, provider *telemetry.Provider, zapLogger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), monitorShutdownTimeout)
	if err := srv.Shutdown(ctx); err != nil {
		observability.Log().Warn("monitor shutdown failed", observability.F("error", err))
	}
	cancel()

	if provider != nil {
		ctx, cancel = context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		if err := provider.Shutdown(ctx); err != nil {
			observability.Log().Warn("telemetry shutdown failed", observability.F("error", err))
		}
		cancel()
	}
	_ = zapLogger.Sync()
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}
