package telemetry

import (
	"context"
	"testing"

	"github.com/kingrea/role2-builder/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	for _, settings := range []config.TelemetryConfig{
		{},
		{Enabled: true},
		{Enabled: false, Endpoint: "http://localhost:4318"},
	} {
		shutdown, err := Setup(context.Background(), settings, "test")
		if err != nil {
			t.Fatalf("Setup(%+v): %v", settings, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("noop shutdown: %v", err)
		}
	}
}

func TestSetupEnabledReturnsShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true, Endpoint: "http://127.0.0.1:4318"}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected shutdown func")
	}
	// Nothing was recorded, so flushing does not contact the collector.
	_ = shutdown(context.Background())
}
