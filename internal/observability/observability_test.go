package observability

import (
	"context"
	"testing"

	"github.com/jkaninda/mjumbe/internal/config"
)

func TestNewNilConfigDisablesEverything(t *testing.T) {
	obs, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	if obs != nil {
		t.Fatalf("New(nil) = %+v, want nil", obs)
	}
	if obs.MetricsOrNil() != nil {
		t.Error("MetricsOrNil on nil must be nil")
	}
	if obs.TracerOrNil() != nil {
		t.Error("TracerOrNil on nil must be nil")
	}
	obs.Shutdown(context.Background()) // must not panic
}

func TestNewMetricsOnly(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs.MetricsOrNil() == nil {
		t.Fatal("metrics must be enabled")
	}
	if obs.TracerOrNil() != nil {
		t.Error("tracing must stay disabled")
	}
}

func TestMetricsCollectorRegistersFamilies(t *testing.T) {
	m := NewMetricsCollector()

	m.ConnectsTotal.WithLabelValues("0", "connected").Inc()
	m.FramesTotal.WithLabelValues("0", "HELLO", "in").Inc()
	m.ShardState.WithLabelValues("0").Set(4)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	for _, want := range []string{
		"mjumbe_session_connects_total",
		"mjumbe_gateway_frames_total",
		"mjumbe_session_shard_state",
	} {
		if !found[want] {
			t.Errorf("metric family %q not registered", want)
		}
	}
}

func TestTracerSetupNilIsNoop(t *testing.T) {
	var ts *TracerSetup
	if ts.Tracer() == nil {
		t.Error("nil TracerSetup must return a noop tracer")
	}
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil: %v", err)
	}
}
