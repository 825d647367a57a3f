// Package intents defines the capability flags negotiated at identify time.
// Each flag gates which event categories the gateway will deliver to a shard.
package intents

import "strings"

// Intents is a bitset of gateway capability flags.
type Intents uint64

const (
	Guilds Intents = 1 << iota
	GuildMembers
	GuildModeration
	GuildExpressions
	GuildIntegrations
	GuildWebhooks
	GuildInvites
	GuildVoiceStates
	GuildPresences
	GuildMessages
	GuildMessageReactions
	GuildMessageTyping
	DirectMessages
	DirectMessageReactions
	DirectMessageTyping
	MessageContent
	GuildScheduledEvents
)

const (
	AutoModerationConfiguration Intents = 1 << 20
	AutoModerationExecution     Intents = 1 << 21
)

// None is the empty intent set.
const None Intents = 0

// Unprivileged is every intent that does not require special approval.
const Unprivileged = Guilds |
	GuildModeration |
	GuildExpressions |
	GuildIntegrations |
	GuildWebhooks |
	GuildInvites |
	GuildVoiceStates |
	GuildMessages |
	GuildMessageReactions |
	GuildMessageTyping |
	DirectMessages |
	DirectMessageReactions |
	DirectMessageTyping |
	GuildScheduledEvents |
	AutoModerationConfiguration |
	AutoModerationExecution

var names = map[Intents]string{
	Guilds:                      "GUILDS",
	GuildMembers:                "GUILD_MEMBERS",
	GuildModeration:             "GUILD_MODERATION",
	GuildExpressions:            "GUILD_EXPRESSIONS",
	GuildIntegrations:           "GUILD_INTEGRATIONS",
	GuildWebhooks:               "GUILD_WEBHOOKS",
	GuildInvites:                "GUILD_INVITES",
	GuildVoiceStates:            "GUILD_VOICE_STATES",
	GuildPresences:              "GUILD_PRESENCES",
	GuildMessages:               "GUILD_MESSAGES",
	GuildMessageReactions:       "GUILD_MESSAGE_REACTIONS",
	GuildMessageTyping:          "GUILD_MESSAGE_TYPING",
	DirectMessages:              "DIRECT_MESSAGES",
	DirectMessageReactions:      "DIRECT_MESSAGE_REACTIONS",
	DirectMessageTyping:         "DIRECT_MESSAGE_TYPING",
	MessageContent:              "MESSAGE_CONTENT",
	GuildScheduledEvents:        "GUILD_SCHEDULED_EVENTS",
	AutoModerationConfiguration: "AUTO_MODERATION_CONFIGURATION",
	AutoModerationExecution:     "AUTO_MODERATION_EXECUTION",
}

// Has reports whether every flag in want is set.
func (i Intents) Has(want Intents) bool {
	return i&want == want
}

// Missing returns the flags in want that are not set.
func (i Intents) Missing(want Intents) Intents {
	return want &^ i
}

// String returns the pipe-joined names of the set flags, or "NONE".
func (i Intents) String() string {
	if i == 0 {
		return "NONE"
	}
	var parts []string
	for bit := Intents(1); bit != 0 && bit <= i; bit <<= 1 {
		if i&bit == 0 {
			continue
		}
		if name, ok := names[bit]; ok {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Parse resolves a single intent name (as used in config files) to its flag.
func Parse(name string) (Intents, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for bit, n := range names {
		if n == upper {
			return bit, true
		}
	}
	return 0, false
}
