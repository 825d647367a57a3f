// Package events models the inbound dispatch events the session core can
// decode for downstream consumers: a closed set of event kinds, the intent
// flags each kind requires, and the payload structures.
//
// The fan-out itself hands payloads downstream still encoded; decoding here
// is opt-in per kind, with the codec the connection negotiated.
package events

import (
	"fmt"
	"time"

	"github.com/jkaninda/mjumbe/internal/frame"
	"github.com/jkaninda/mjumbe/internal/gateway"
	"github.com/jkaninda/mjumbe/internal/intents"
)

// Kind is the dispatch event name as it appears on the wire.
type Kind string

const (
	KindReady   Kind = "READY"
	KindResumed Kind = "RESUMED"

	KindMemberAdd    Kind = "GUILD_MEMBER_ADD"
	KindMemberUpdate Kind = "GUILD_MEMBER_UPDATE"
	KindMemberRemove Kind = "GUILD_MEMBER_REMOVE"
	KindMemberChunk  Kind = "GUILD_MEMBERS_CHUNK"

	KindScheduledEventCreate     Kind = "GUILD_SCHEDULED_EVENT_CREATE"
	KindScheduledEventUpdate     Kind = "GUILD_SCHEDULED_EVENT_UPDATE"
	KindScheduledEventDelete     Kind = "GUILD_SCHEDULED_EVENT_DELETE"
	KindScheduledEventUserAdd    Kind = "GUILD_SCHEDULED_EVENT_USER_ADD"
	KindScheduledEventUserRemove Kind = "GUILD_SCHEDULED_EVENT_USER_REMOVE"

	KindVoiceStateUpdate  Kind = "VOICE_STATE_UPDATE"
	KindVoiceServerUpdate Kind = "VOICE_SERVER_UPDATE"
	KindPresenceUpdate    Kind = "PRESENCE_UPDATE"
)

// requiredIntents maps each event kind to the intent flags a shard must have
// identified with to receive it. Kinds absent from the table need none.
// Checked once when a consumer registers interest, not per dispatch.
var requiredIntents = map[Kind]intents.Intents{
	KindMemberAdd:    intents.GuildMembers,
	KindMemberUpdate: intents.GuildMembers,
	KindMemberRemove: intents.GuildMembers,

	KindScheduledEventCreate:     intents.GuildScheduledEvents,
	KindScheduledEventUpdate:     intents.GuildScheduledEvents,
	KindScheduledEventDelete:     intents.GuildScheduledEvents,
	KindScheduledEventUserAdd:    intents.GuildScheduledEvents,
	KindScheduledEventUserRemove: intents.GuildScheduledEvents,

	KindVoiceStateUpdate: intents.GuildVoiceStates,
	KindPresenceUpdate:   intents.GuildPresences,
}

// RequiredIntents returns the intent flags needed to receive the given kind.
func RequiredIntents(kind Kind) intents.Intents {
	return requiredIntents[kind]
}

// CheckIntents verifies that have covers every kind in kinds. Returns a
// MissingIntentError naming the first absent flags.
func CheckIntents(have intents.Intents, kinds ...Kind) error {
	for _, kind := range kinds {
		if missing := have.Missing(requiredIntents[kind]); missing != 0 {
			return &gateway.MissingIntentError{Missing: missing}
		}
	}
	return nil
}

// Guild is the slice of a cached guild the event model exposes.
type Guild struct {
	ID   gateway.Snowflake `json:"id"`
	Name string            `json:"name"`
}

// GuildLookup resolves a guild from an out-of-scope cache. The session core
// takes it as a constructor parameter; it never reaches back into a client.
type GuildLookup func(id gateway.Snowflake) (Guild, bool)

// Member is a guild member as carried by the member events.
type Member struct {
	GuildID      gateway.Snowflake   `json:"guild_id"`
	User         frame.User          `json:"user"`
	Nick         string              `json:"nick,omitempty"`
	RoleIDs      []gateway.Snowflake `json:"roles"`
	JoinedAt     time.Time           `json:"joined_at"`
	Deaf         bool                `json:"deaf"`
	Mute         bool                `json:"mute"`
	Pending      bool                `json:"pending,omitempty"`
	PremiumSince *time.Time          `json:"premium_since,omitempty"`
}

// UserID is the id of the member's underlying user.
func (m *Member) UserID() gateway.Snowflake {
	return m.User.ID
}

// MemberRemove carries the user that left, was kicked, or was banned.
type MemberRemove struct {
	GuildID gateway.Snowflake `json:"guild_id"`
	User    frame.User        `json:"user"`
}

// MemberChunk is one page of a guild member request's response.
type MemberChunk struct {
	GuildID    gateway.Snowflake   `json:"guild_id"`
	Members    []Member            `json:"members"`
	ChunkIndex int                 `json:"chunk_index"`
	ChunkCount int                 `json:"chunk_count"`
	NotFound   []gateway.Snowflake `json:"not_found,omitempty"`
	Nonce      string              `json:"nonce,omitempty"`
}

// ScheduledEventStatus is the lifecycle state of a scheduled event.
type ScheduledEventStatus int

const (
	ScheduledEventScheduled ScheduledEventStatus = 1
	ScheduledEventActive    ScheduledEventStatus = 2
	ScheduledEventCompleted ScheduledEventStatus = 3
	ScheduledEventCanceled  ScheduledEventStatus = 4
)

// ScheduledEventEntityType distinguishes stage, voice, and external events.
type ScheduledEventEntityType int

const (
	ScheduledEntityStage    ScheduledEventEntityType = 1
	ScheduledEntityVoice    ScheduledEventEntityType = 2
	ScheduledEntityExternal ScheduledEventEntityType = 3
)

// ScheduledEvent is a guild scheduled event, as carried by the
// GUILD_SCHEDULED_EVENT_* dispatches.
type ScheduledEvent struct {
	ID          gateway.Snowflake        `json:"id"`
	GuildID     gateway.Snowflake        `json:"guild_id"`
	ChannelID   *gateway.Snowflake       `json:"channel_id"` // nil for external events
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	StartTime   time.Time                `json:"scheduled_start_time"`
	EndTime     *time.Time               `json:"scheduled_end_time"`
	Status      ScheduledEventStatus     `json:"status"`
	EntityType  ScheduledEventEntityType `json:"entity_type"`
	Creator     *frame.User              `json:"creator,omitempty"`
	UserCount   int                      `json:"user_count,omitempty"`
}

// ScheduledEventUser links a user subscription to a scheduled event.
type ScheduledEventUser struct {
	EventID gateway.Snowflake `json:"guild_scheduled_event_id"`
	UserID  gateway.Snowflake `json:"user_id"`
	GuildID gateway.Snowflake `json:"guild_id"`
}

// VoiceState is a user's voice connection state within a guild.
type VoiceState struct {
	GuildID    gateway.Snowflake  `json:"guild_id"`
	ChannelID  *gateway.Snowflake `json:"channel_id"` // nil when disconnected
	UserID     gateway.Snowflake  `json:"user_id"`
	SessionID  string             `json:"session_id"`
	Deaf       bool               `json:"deaf"`
	Mute       bool               `json:"mute"`
	SelfDeaf   bool               `json:"self_deaf"`
	SelfMute   bool               `json:"self_mute"`
	SelfStream bool               `json:"self_stream,omitempty"`
	SelfVideo  bool               `json:"self_video"`
	Suppress   bool               `json:"suppress"`
}

// Decode unmarshals an inbound event's payload into the typed structure for
// its kind. Kinds outside the closed set return an error; callers forward
// those payloads opaquely instead.
func Decode(c frame.Codec, ev *gateway.InboundEvent) (any, error) {
	decode := func(v any) (any, error) {
		if err := c.Unmarshal(ev.Payload, v); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", ev.Kind, err)
		}
		return v, nil
	}

	switch Kind(ev.Kind) {
	case KindMemberAdd, KindMemberUpdate:
		return decode(&Member{})
	case KindMemberRemove:
		return decode(&MemberRemove{})
	case KindMemberChunk:
		return decode(&MemberChunk{})
	case KindScheduledEventCreate, KindScheduledEventUpdate, KindScheduledEventDelete:
		return decode(&ScheduledEvent{})
	case KindScheduledEventUserAdd, KindScheduledEventUserRemove:
		return decode(&ScheduledEventUser{})
	case KindVoiceStateUpdate:
		return decode(&VoiceState{})
	default:
		return nil, fmt.Errorf("no typed model for event kind %q", ev.Kind)
	}
}
