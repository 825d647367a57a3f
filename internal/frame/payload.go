package frame

import "github.com/jkaninda/mjumbe/internal/gateway"

// Payload structs carry both directions of the handshake and command frames.
// Field names follow the wire protocol; the CBOR codec reuses the json tags.

// Hello is the first inbound frame on every connection.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// ConnectionProperties describes the client in the identify payload.
type ConnectionProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify opens a brand-new session.
type Identify struct {
	Token          string               `json:"token"`
	Properties     ConnectionProperties `json:"properties"`
	Compress       bool                 `json:"compress,omitempty"`
	LargeThreshold int                  `json:"large_threshold,omitempty"`
	Shard          [2]int               `json:"shard"`
	Presence       *Presence            `json:"presence,omitempty"`
	Intents        uint64               `json:"intents"`
}

// Resume replays a prior session instead of starting fresh.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// User is the slice of the user object the session core needs.
type User struct {
	ID       gateway.Snowflake `json:"id"`
	Username string            `json:"username"`
	Bot      bool              `json:"bot,omitempty"`
}

// Ready acknowledges a successful identify.
type Ready struct {
	Version          int    `json:"v"`
	User             User   `json:"user"`
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	Shard            [2]int `json:"shard"`
}

// Presence is the full merged presence sent with identify and
// presence-update frames.
type Presence struct {
	Since      *int64             `json:"since"`
	Activities []gateway.Activity `json:"activities"`
	Status     gateway.Status     `json:"status"`
	AFK        bool               `json:"afk"`
}

// VoiceStateUpdate joins, moves, or leaves a voice channel. A nil ChannelID
// means leave.
type VoiceStateUpdate struct {
	GuildID   gateway.Snowflake  `json:"guild_id"`
	ChannelID *gateway.Snowflake `json:"channel_id"`
	SelfMute  bool               `json:"self_mute"`
	SelfDeaf  bool               `json:"self_deaf"`
}

// RequestGuildMembers asks the gateway to stream member chunks for a guild.
type RequestGuildMembers struct {
	GuildID   gateway.Snowflake   `json:"guild_id"`
	Query     *string             `json:"query,omitempty"`
	Limit     int                 `json:"limit"`
	Presences bool                `json:"presences,omitempty"`
	UserIDs   []gateway.Snowflake `json:"user_ids,omitempty"`
	Nonce     string              `json:"nonce,omitempty"`
}
