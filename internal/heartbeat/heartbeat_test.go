package heartbeat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLatencyNaNBeforeFirstAck(t *testing.T) {
	m := NewMonitor(time.Second, func(context.Context) error { return nil }, nil, testLogger())
	if !math.IsNaN(m.Latency()) {
		t.Fatalf("Latency() = %f before any ack, want NaN", m.Latency())
	}
}

func TestAckRecordsLatency(t *testing.T) {
	sent := make(chan struct{}, 1)
	m := NewMonitor(10*time.Millisecond, func(context.Context) error {
		select {
		case sent <- struct{}{}:
		default:
		}
		return nil
	}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first beat")
	}
	m.Ack()

	latency := m.Latency()
	if math.IsNaN(latency) || latency < 0 {
		t.Fatalf("Latency() = %f after ack", latency)
	}
}

func TestZombieDetection(t *testing.T) {
	var zombied atomic.Bool
	m := NewMonitor(5*time.Millisecond,
		func(context.Context) error { return nil }, // never acked
		func() { zombied.Store(true) },
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Second beat finds the first unacknowledged and declares the zombie.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after missed ack")
	}
	if !zombied.Load() {
		t.Fatal("onZombie was not called")
	}
	if !math.IsNaN(m.Latency()) {
		t.Errorf("Latency() = %f with no ack recorded, want NaN", m.Latency())
	}
}

func TestAckKeepsLoopRunning(t *testing.T) {
	var beats atomic.Int64
	var m *Monitor
	m = NewMonitor(5*time.Millisecond, func(context.Context) error {
		beats.Add(1)
		m.Ack()
		return nil
	}, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	if beats.Load() < 2 {
		t.Fatalf("beats = %d, want at least 2", beats.Load())
	}
}

func TestSendErrorStopsLoop(t *testing.T) {
	m := NewMonitor(time.Millisecond, func(context.Context) error {
		return errors.New("socket closed")
	}, nil, testLogger())

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after send failure")
	}
}
