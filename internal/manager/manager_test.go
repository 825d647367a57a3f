package manager

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jkaninda/mjumbe/internal/config"
	"github.com/jkaninda/mjumbe/internal/gateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nopSink() gateway.EventSink {
	return gateway.EventSinkFunc(func(context.Context, *gateway.InboundEvent) {})
}

func testConfig() *config.Config {
	return &config.Config{
		Token:      "test-token",
		GatewayURL: "wss://gateway.example.com",
		ShardCount: 4,
		Intents:    []string{"GUILDS"},
	}
}

func TestNewBuildsFleet(t *testing.T) {
	m, err := New(testConfig(), nopSink(), nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	shards := m.Shards()
	if len(shards) != 4 {
		t.Fatalf("fleet size = %d, want 4", len(shards))
	}
	for i, s := range shards {
		if s.ID() != i {
			t.Errorf("shard %d has id %d", i, s.ID())
		}
		if s.ShardCount() != 4 {
			t.Errorf("shard %d count = %d", i, s.ShardCount())
		}
	}

	if m.Shard(2) == nil {
		t.Error("Shard(2) = nil")
	}
	if m.Shard(9) != nil {
		t.Error("Shard(9) must be nil for an unowned id")
	}
	if m.AnyAlive() {
		t.Error("no shard should be alive before Start")
	}
	if m.AllConnected() {
		t.Error("no shard should be connected before Start")
	}
}

func TestNewPartialShardSet(t *testing.T) {
	cfg := testConfig()
	cfg.ShardIDs = []int{1, 3}
	m, err := New(cfg, nopSink(), nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(m.Shards()) != 2 {
		t.Fatalf("fleet size = %d, want 2", len(m.Shards()))
	}
	if m.Shard(0) != nil || m.Shard(2) != nil {
		t.Error("unowned shard ids must not resolve")
	}
	if m.Shard(1) == nil || m.Shard(3) == nil {
		t.Error("owned shard ids must resolve")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Format = "etf"
	if _, err := New(cfg, nopSink(), nil, testLogger()); err == nil {
		t.Error("expected error for unknown format")
	}

	cfg = testConfig()
	cfg.Intents = []string{"GUILD_BANANAS"}
	if _, err := New(cfg, nopSink(), nil, testLogger()); err == nil {
		t.Error("expected error for unknown intent")
	}

	cfg = testConfig()
	cfg.Compression = "gzip"
	if _, err := New(cfg, nopSink(), nil, testLogger()); err == nil {
		t.Error("expected error for unknown compression")
	}
}

func TestShardForGuild(t *testing.T) {
	m, err := New(testConfig(), nopSink(), nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// (guild_id >> 22) % shard_count selects the owner.
	tests := []struct {
		guild gateway.Snowflake
		want  int
	}{
		{guild: gateway.Snowflake(0 << 22), want: 0},
		{guild: gateway.Snowflake(5 << 22), want: 1},
		{guild: gateway.Snowflake(6 << 22), want: 2},
		{guild: gateway.Snowflake(7 << 22), want: 3},
	}
	for _, tt := range tests {
		s := m.ShardForGuild(tt.guild)
		if s == nil {
			t.Fatalf("ShardForGuild(%s) = nil", tt.guild)
		}
		if s.ID() != tt.want {
			t.Errorf("ShardForGuild(%s) = shard %d, want %d", tt.guild, s.ID(), tt.want)
		}
	}
}

func TestPresenceFromConfig(t *testing.T) {
	update := presenceFromConfig(&config.PresenceConfig{
		Status:   "dnd",
		AFK:      true,
		Activity: "uptime watch",
	})

	if status, ok := update.Status.Value(); !ok || status != gateway.StatusDoNotDisturb {
		t.Errorf("status = %v, %v", status, ok)
	}
	if afk, ok := update.AFK.Value(); !ok || !afk {
		t.Errorf("afk = %v, %v", afk, ok)
	}
	if act, ok := update.Activity.Value(); !ok || act.Name != "uptime watch" {
		t.Errorf("activity = %+v, %v", act, ok)
	}

	empty := presenceFromConfig(&config.PresenceConfig{})
	if empty.Status.IsSpecified() || empty.AFK.IsSpecified() || empty.Activity.IsSpecified() {
		t.Error("empty presence config must leave all fields unspecified")
	}
}
