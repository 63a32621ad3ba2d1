// Package telemetry wires the OTLP metrics pipeline used by the coordinator.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
)

const (
	defaultServiceName = "atomictrader"
	defaultVersion     = "1.0.0"
	defaultEndpoint    = "localhost:4318"
	defaultEnvironment = "development"
	defaultInterval    = 30 * time.Second
)

var environment atomic.Value

// Config selects where and how often metrics are exported.
type Config struct {
	Enabled          bool
	EnableMetrics    bool
	OTLPEndpoint     string
	OTLPInsecure     bool
	MetricInterval   time.Duration
	ServiceName      string
	ServiceVersion   string
	ServiceNamespace string
	Environment      string
}

// DefaultConfig reads the standard OTEL_* variables. ATOMICTRADER_ENV is
// consulted when OTEL_RESOURCE_ENVIRONMENT is unset.
func DefaultConfig() Config {
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) Config {
	return Config{
		Enabled:          getenv("OTEL_ENABLED") != "false",
		EnableMetrics:    getenv("OTEL_METRICS_ENABLED") != "false",
		OTLPEndpoint:     firstNonEmpty(getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), defaultEndpoint),
		OTLPInsecure:     getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		MetricInterval:   defaultInterval,
		ServiceName:      firstNonEmpty(getenv("OTEL_SERVICE_NAME"), defaultServiceName),
		ServiceVersion:   defaultVersion,
		ServiceNamespace: strings.TrimSpace(getenv("OTEL_SERVICE_NAMESPACE")),
		Environment: firstNonEmpty(
			getenv("OTEL_RESOURCE_ENVIRONMENT"),
			getenv("ATOMICTRADER_ENV"),
			defaultEnvironment,
		),
	}
}

// Provider owns the meter provider. A disabled Provider leaves the global
// no-op meter in place.
type Provider struct {
	mp *sdkmetric.MeterProvider
}

// NewProvider records the environment label and, when metrics are enabled,
// installs an OTLP/HTTP meter provider as the global one.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	environment.Store(strings.ToLower(strings.TrimSpace(cfg.Environment)))
	if !cfg.Enabled || !cfg.EnableMetrics {
		return &Provider{}, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpointHost(cfg.OTLPEndpoint))}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultInterval
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithView(latencyViews()...),
	)
	otel.SetMeterProvider(mp)
	return &Provider{mp: mp}, nil
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.mp != nil
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}

// Meter returns a meter from the owned provider, or the global one when disabled.
func (p *Provider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if !p.Enabled() {
		return otel.Meter(name, opts...)
	}
	return p.mp.Meter(name, opts...)
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	kvs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		AttrEnvironment.String(Environment()),
	}
	if cfg.ServiceNamespace != "" {
		kvs = append(kvs, semconv.ServiceNamespace(cfg.ServiceNamespace))
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(kvs...),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}
	return res, nil
}

// latencyViews sets bucket boundaries (milliseconds) for the dispatcher histograms.
func latencyViews() []sdkmetric.View {
	return []sdkmetric.View{
		// Clock sync and venue dial run inside a transition, so multi-second values occur.
		bucketView(MetricTransitionDuration, 1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
		bucketView(MetricNotifyDuration, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100),
		bucketView(MetricUnwindDuration, 10, 50, 100, 250, 500, 1000, 2000, 5000, 10000),
	}
}

func bucketView(instrument string, boundaries ...float64) sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: instrument, Kind: sdkmetric.InstrumentKindHistogram},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: boundaries}},
	)
}

// endpointHost reduces a collector URL to host:port for the OTLP HTTP exporter.
func endpointHost(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimSuffix(endpoint, "/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Environment returns the environment label attached to every metric.
func Environment() string {
	if env, ok := environment.Load().(string); ok && env != "" {
		return env
	}
	return defaultEnvironment
}
