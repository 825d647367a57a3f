// Package gateway defines the public contract between a shard session and
// the code that supervises it: the Shard interface, the command argument
// types, the inbound event handoff, and the error taxonomy.
package gateway

import (
	"context"

	"github.com/jkaninda/mjumbe/internal/intents"
)

// Shard is one logical gateway connection responsible for a partition of
// guilds. A multi-shard supervisor uses this contract to start, monitor,
// and coordinate many session state machines.
type Shard interface {
	// ID is the 0-based shard index.
	ID() int
	// ShardCount is the total number of shards in the application.
	ShardCount() int
	// Intents returns the intent set negotiated at identify time.
	Intents() intents.Intents

	// IsAlive reports whether the session loop is running (possibly mid-reconnect).
	IsAlive() bool
	// IsConnected reports whether the session is in the Connected state.
	IsConnected() bool
	// HeartbeatLatency is the most recent beat/ack round trip in seconds,
	// or NaN if no measurement exists.
	HeartbeatLatency() float64

	// GetUserID returns the application user id learned from the ready
	// payload. Returns ErrNotConnected before the first handshake completes.
	GetUserID() (Snowflake, error)

	// Start runs the session loop and blocks until the first successful
	// handshake or a fatal error.
	Start(ctx context.Context) error
	// Close shuts the session down. Idempotent; safe from any goroutine.
	Close(ctx context.Context) error
	// Join blocks until the session loop terminates.
	Join(ctx context.Context) error

	// UpdatePresence merges the specified fields into the durable presence.
	// Deferred silently while disconnected.
	UpdatePresence(ctx context.Context, update PresenceUpdate) error
	// UpdateVoiceState joins, moves, or leaves a voice channel.
	UpdateVoiceState(ctx context.Context, req VoiceStateRequest) error
	// RequestGuildMembers asks the gateway to stream member chunks.
	RequestGuildMembers(ctx context.Context, req MemberRequest) error
}

// PresenceUpdate carries the caller's desired presence changes. Every field
// is tri-state: unspecified fields keep their previous value.
type PresenceUpdate struct {
	IdleSince Omissible[int64] // unix ms the user went idle
	AFK       Omissible[bool]
	Activity  Omissible[Activity]
	Status    Omissible[Status]
}

// VoiceStateRequest carries the arguments for a voice-state update.
// A nil ChannelID leaves the current voice channel in the guild.
type VoiceStateRequest struct {
	GuildID   Snowflake
	ChannelID *Snowflake
	SelfMute  Omissible[bool]
	SelfDeaf  Omissible[bool]
}

// MemberRequest carries the arguments for a guild member chunk request.
// Users is mutually exclusive with Query/Limit.
type MemberRequest struct {
	GuildID          Snowflake
	Query            string
	Limit            int
	Users            []Snowflake
	IncludePresences Omissible[bool]
	Nonce            string
}

// InboundEvent is one decoded dispatch frame, annotated with the shard that
// produced it. Payload stays in the connection's wire encoding; consumers
// decode it with the codec they were configured with.
type InboundEvent struct {
	ShardID  int
	Sequence int64
	Kind     string
	Payload  []byte
}

// EventSink consumes dispatched events in wire order. Deliver runs on a
// dispatcher goroutine owned by the shard; a slow or panicking sink never
// stalls the connection loop.
type EventSink interface {
	Deliver(ctx context.Context, ev *InboundEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, ev *InboundEvent)

// Deliver calls f.
func (f EventSinkFunc) Deliver(ctx context.Context, ev *InboundEvent) {
	f(ctx, ev)
}
