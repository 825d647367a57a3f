package config

import (
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/mjumbe/internal/intents"
)

const validYAML = `
token: "bot-token"
gateway_url: "wss://gateway.example.com"
shard_count: 2
intents:
  - GUILDS
  - GUILD_MEMBERS
`

func TestParseYAML(t *testing.T) {
	t.Setenv("MJUMBE_TOKEN", "")
	t.Setenv("MJUMBE_GATEWAY_URL", "")
	cfg, err := Parse([]byte(validYAML), ".yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Token != "bot-token" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.Count() != 2 {
		t.Errorf("Count() = %d, want 2", cfg.Count())
	}
	if got := cfg.Shards(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Shards() = %v, want [0 1]", got)
	}

	bits, err := cfg.IntentBits()
	if err != nil {
		t.Fatalf("IntentBits: %v", err)
	}
	if want := intents.Guilds | intents.GuildMembers; bits != want {
		t.Errorf("IntentBits() = %s, want %s", bits, want)
	}
}

func TestParseJSON(t *testing.T) {
	data := `{"token":"t","gateway_url":"wss://g.example.com","intents":["GUILDS"]}`
	cfg, err := Parse([]byte(data), ".json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GatewayURL != "wss://g.example.com" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"token":"t","gateway_url":"wss://g"}`), ".json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.ProtocolVersion() != 10 {
		t.Errorf("ProtocolVersion() = %d, want 10", cfg.ProtocolVersion())
	}
	if cfg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", cfg.Count())
	}
	if cfg.PayloadFormat() != "json" {
		t.Errorf("PayloadFormat() = %q, want json", cfg.PayloadFormat())
	}
	if cfg.Session.HandshakeTimeout() != 30*time.Second {
		t.Errorf("HandshakeTimeout() = %s", cfg.Session.HandshakeTimeout())
	}
	if cfg.Session.BackoffInitial() != time.Second {
		t.Errorf("BackoffInitial() = %s", cfg.Session.BackoffInitial())
	}
	if cfg.Session.BackoffMax() != 60*time.Second {
		t.Errorf("BackoffMax() = %s", cfg.Session.BackoffMax())
	}
	if cfg.Session.IdentifyInterval() != 5*time.Second {
		t.Errorf("IdentifyInterval() = %s", cfg.Session.IdentifyInterval())
	}
}

func TestFormatWinsOverDeprecatedEncoding(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "format only",
			data: `{"token":"t","gateway_url":"wss://g","format":"cbor"}`,
			want: "cbor",
		},
		{
			name: "encoding only",
			data: `{"token":"t","gateway_url":"wss://g","encoding":"cbor"}`,
			want: "cbor",
		},
		{
			name: "format wins when both set",
			data: `{"token":"t","gateway_url":"wss://g","format":"json","encoding":"cbor"}`,
			want: "json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.data), ".json")
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := cfg.PayloadFormat(); got != tt.want {
				t.Errorf("PayloadFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing token",
			data:    `{"gateway_url":"wss://g"}`,
			wantErr: "token is required",
		},
		{
			name:    "missing gateway url",
			data:    `{"token":"t"}`,
			wantErr: "gateway_url is required",
		},
		{
			name:    "non-websocket url",
			data:    `{"token":"t","gateway_url":"https://g"}`,
			wantErr: "must be a ws:// or wss:// URL",
		},
		{
			name:    "unknown format",
			data:    `{"token":"t","gateway_url":"wss://g","format":"etf"}`,
			wantErr: "not supported",
		},
		{
			name:    "unknown compression",
			data:    `{"token":"t","gateway_url":"wss://g","compression":"gzip"}`,
			wantErr: "not supported",
		},
		{
			name:    "unknown intent",
			data:    `{"token":"t","gateway_url":"wss://g","intents":["GUILD_BANANAS"]}`,
			wantErr: "unknown intent",
		},
		{
			name:    "shard id out of range",
			data:    `{"token":"t","gateway_url":"wss://g","shard_count":2,"shard_ids":[2]}`,
			wantErr: "out of range",
		},
		{
			name:    "bad presence status",
			data:    `{"token":"t","gateway_url":"wss://g","presence":{"status":"sleeping"}}`,
			wantErr: "presence.status",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MJUMBE_TOKEN", "")
			t.Setenv("MJUMBE_GATEWAY_URL", "")
			_, err := Parse([]byte(tt.data), ".json")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MJUMBE_TOKEN", "env-token")
	t.Setenv("MJUMBE_GATEWAY_URL", "wss://env.example.com")

	cfg, err := Parse([]byte(`{"token":"file-token","gateway_url":"wss://file"}`), ".json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want env override", cfg.Token)
	}
	if cfg.GatewayURL != "wss://env.example.com" {
		t.Errorf("GatewayURL = %q, want env override", cfg.GatewayURL)
	}
}
