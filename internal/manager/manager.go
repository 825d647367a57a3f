// Package manager supervises a fleet of shard sessions: it partitions the
// configured shard ids across sessions, shares one identify gate and one
// observability stack between them, and aggregates lifecycle control.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mjumbe/internal/config"
	"github.com/jkaninda/mjumbe/internal/frame"
	"github.com/jkaninda/mjumbe/internal/gateway"
	"github.com/jkaninda/mjumbe/internal/observability"
	"github.com/jkaninda/mjumbe/internal/ratelimit"
	"github.com/jkaninda/mjumbe/internal/shard"
)

// Manager owns the shard fleet for one process.
type Manager struct {
	log    *slog.Logger
	shards []*shard.Shard
	byID   map[int]*shard.Shard

	mu      sync.Mutex
	started bool
}

// New builds the fleet from config. Every shard shares the same identify
// gate, metrics collector, tracer, and event sink.
func New(cfg *config.Config, sink gateway.EventSink, obs *observability.Observability, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	codec, err := frame.ByName(cfg.PayloadFormat())
	if err != nil {
		return nil, err
	}
	compression, err := frame.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	intentBits, err := cfg.IntentBits()
	if err != nil {
		return nil, err
	}

	gate := ratelimit.NewGate(ratelimit.Config{
		PerBucket:      cfg.Session.IdentifyInterval(),
		MaxConcurrency: cfg.Session.MaxConcurrency,
	})

	var initialPresence *gateway.PresenceUpdate
	if cfg.Presence != nil {
		initialPresence = presenceFromConfig(cfg.Presence)
	}

	var tracer trace.Tracer
	if ts := obs.TracerOrNil(); ts != nil {
		tracer = ts.Tracer()
	}

	m := &Manager{
		log:  logger,
		byID: make(map[int]*shard.Shard),
	}
	for _, id := range cfg.Shards() {
		s, err := shard.New(shard.Config{
			ID:               id,
			Count:            cfg.Count(),
			Token:            cfg.Token,
			Intents:          intentBits,
			GatewayURL:       cfg.GatewayURL,
			Version:          cfg.ProtocolVersion(),
			Codec:            codec,
			Compression:      compression,
			Sink:             sink,
			Gate:             gate,
			InitialPresence:  initialPresence,
			LargeThreshold:   cfg.Session.LargeThreshold,
			HandshakeTimeout: cfg.Session.HandshakeTimeout(),
			BackoffInitial:   cfg.Session.BackoffInitial(),
			BackoffMax:       cfg.Session.BackoffMax(),
			StableReset:      cfg.Session.StableReset(),
			Logger:           logger,
			Metrics:          obs.MetricsOrNil(),
			Tracer:           tracer,
		})
		if err != nil {
			return nil, fmt.Errorf("building shard %d: %w", id, err)
		}
		m.shards = append(m.shards, s)
		m.byID[id] = s
	}
	return m, nil
}

func presenceFromConfig(pc *config.PresenceConfig) *gateway.PresenceUpdate {
	update := &gateway.PresenceUpdate{}
	if pc.Status != "" {
		update.Status = gateway.Some(gateway.Status(pc.Status))
	}
	if pc.AFK {
		update.AFK = gateway.Some(true)
	}
	if pc.Activity != "" {
		update.Activity = gateway.Some(gateway.Activity{Name: pc.Activity})
	}
	return update
}

// Start brings every shard up concurrently and blocks until all of them
// reach Connected or any of them fails. On failure the already-started
// shards are closed before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return gateway.ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.log.Info("starting shard fleet", slog.Int("shards", len(m.shards)))

	errCh := make(chan error, len(m.shards))
	var wg sync.WaitGroup
	for _, s := range m.shards {
		wg.Add(1)
		go func(s *shard.Shard) {
			defer wg.Done()
			if err := s.Start(ctx); err != nil {
				errCh <- fmt.Errorf("shard %d: %w", s.ID(), err)
			}
		}(s)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		_ = m.Close(context.Background())
		return errors.Join(errs...)
	}
	m.log.Info("shard fleet connected")
	return nil
}

// Close shuts every shard down. Idempotent.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, s := range m.shards {
		wg.Add(1)
		go func(s *shard.Shard) {
			defer wg.Done()
			if err := s.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shard %d: %w", s.ID(), err))
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Join blocks until every shard's session loop has terminated, returning the
// combined fatal errors if any shard died on one.
func (m *Manager) Join(ctx context.Context) error {
	var errs []error
	for _, s := range m.shards {
		if err := s.Join(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Shards returns the fleet in id order.
func (m *Manager) Shards() []*shard.Shard {
	return m.shards
}

// Shard returns the shard running the given id, or nil when this process
// does not own it.
func (m *Manager) Shard(id int) *shard.Shard {
	return m.byID[id]
}

// ShardForGuild routes a guild id to the shard responsible for it using the
// standard (guild_id >> 22) % shard_count partition.
func (m *Manager) ShardForGuild(guildID gateway.Snowflake) *shard.Shard {
	if len(m.shards) == 0 {
		return nil
	}
	id := int((uint64(guildID) >> 22) % uint64(m.shards[0].ShardCount()))
	return m.byID[id]
}

// AllConnected reports whether every shard is in the Connected state.
func (m *Manager) AllConnected() bool {
	for _, s := range m.shards {
		if !s.IsConnected() {
			return false
		}
	}
	return len(m.shards) > 0
}

// AnyAlive reports whether at least one session loop is still running.
func (m *Manager) AnyAlive() bool {
	for _, s := range m.shards {
		if s.IsAlive() {
			return true
		}
	}
	return false
}

// HeartbeatLatencies returns the last measured heartbeat latency per shard
// id. Shards without a measurement yet report NaN.
func (m *Manager) HeartbeatLatencies() map[int]float64 {
	latencies := make(map[int]float64, len(m.shards))
	for _, s := range m.shards {
		latencies[s.ID()] = s.HeartbeatLatency()
	}
	return latencies
}

// UpdatePresence applies a presence update to every shard in the fleet.
func (m *Manager) UpdatePresence(ctx context.Context, update gateway.PresenceUpdate) error {
	var errs []error
	for _, s := range m.shards {
		if err := s.UpdatePresence(ctx, update); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}
