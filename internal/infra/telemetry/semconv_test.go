package telemetry

import (
	"context"
	"testing"
)

func TestTransitionAttributesCarryEnvironment(t *testing.T) {
	attrs := TransitionAttributes("Idle", "Trade", ResultSuccess)
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != AttrEnvironment {
		t.Fatalf("expected environment first, got %s", attrs[0].Key)
	}
	if attrs[2].Value.AsString() != "Trade" {
		t.Fatalf("unexpected mode.to value %q", attrs[2].Value.AsString())
	}
}

func TestDisabledProviderIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Environment = "Staging"
	p, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Enabled() {
		t.Fatalf("expected disabled provider")
	}
	if Environment() != "staging" {
		t.Fatalf("expected lowercased environment, got %q", Environment())
	}
	if p.Meter("test") == nil {
		t.Fatalf("expected global meter fallback")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
