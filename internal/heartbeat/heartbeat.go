// Package heartbeat owns the per-connection liveness loop. The Monitor beats
// at the server-supplied interval, records beat/ack latency, and declares the
// connection zombied when an ack is missing by the time the next beat is due.
package heartbeat

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// SendFunc writes one heartbeat frame carrying the current sequence.
type SendFunc func(ctx context.Context) error

// Monitor drives the heartbeat loop for a single connection. One Monitor per
// connection attempt; reconnects build a fresh one from the next Hello.
type Monitor struct {
	interval time.Duration
	send     SendFunc
	onZombie func()
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent time.Time
	acked    bool

	latencyBits atomic.Uint64 // float64 seconds; NaN before first ack
}

// NewMonitor creates a monitor for the given server interval. onZombie fires
// at most once, from the monitor goroutine, when an ack is overdue.
func NewMonitor(interval time.Duration, send SendFunc, onZombie func(), logger *slog.Logger) *Monitor {
	m := &Monitor{
		interval: interval,
		send:     send,
		onZombie: onZombie,
		logger:   logger,
		acked:    true,
	}
	m.latencyBits.Store(math.Float64bits(math.NaN()))
	return m
}

// Run beats until ctx is canceled or a zombie is detected. The first beat is
// delayed by a random fraction of the interval so a fleet of shards
// reconnecting together does not thunder in lockstep.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Debug("heartbeat started",
		slog.String("interval", m.interval.String()),
	)

	initial := time.Duration(rand.Float64() * float64(m.interval))
	timer := time.NewTimer(initial)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if !m.beat(ctx) {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("heartbeat stopped")
			return
		case <-ticker.C:
			if !m.beat(ctx) {
				return
			}
		}
	}
}

// beat sends one heartbeat. Returns false when the loop must stop: either
// the previous beat was never acknowledged or the write failed.
func (m *Monitor) beat(ctx context.Context) bool {
	m.mu.Lock()
	if !m.acked {
		m.mu.Unlock()
		m.logger.Warn("heartbeat ack overdue, connection is zombied")
		if m.onZombie != nil {
			m.onZombie()
		}
		return false
	}
	m.acked = false
	m.lastSent = time.Now()
	m.mu.Unlock()

	if err := m.send(ctx); err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("heartbeat send failed", slog.String("error", err.Error()))
		}
		return false
	}
	return true
}

// Ack records an acknowledgement and the beat/ack round trip.
func (m *Monitor) Ack() {
	m.mu.Lock()
	m.acked = true
	sent := m.lastSent
	m.mu.Unlock()

	if !sent.IsZero() {
		m.latencyBits.Store(math.Float64bits(time.Since(sent).Seconds()))
	}
}

// Latency returns the most recent beat/ack round trip in seconds, or NaN if
// none has been measured yet.
func (m *Monitor) Latency() float64 {
	return math.Float64frombits(m.latencyBits.Load())
}

// Interval returns the server-supplied beat interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}
