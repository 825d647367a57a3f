package shard

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jkaninda/mjumbe/internal/frame"
	"github.com/jkaninda/mjumbe/internal/gateway"
	"github.com/jkaninda/mjumbe/internal/intents"
)

// pendingPresence is the durable merged presence. It survives reconnects and
// is embedded in every identify so the declared presence never silently
// reverts. Guarded by Shard.mu.
type pendingPresence struct {
	specified bool
	idleSince *int64
	afk       bool
	activity  *gateway.Activity
	status    gateway.Status
}

// merge folds the specified fields of an update into the durable presence.
// Unspecified fields keep their previous value; explicit nulls reset the
// field to its default.
func (p *pendingPresence) merge(u gateway.PresenceUpdate) {
	if u.IdleSince.IsSpecified() {
		p.specified = true
		if v, ok := u.IdleSince.Value(); ok {
			since := v
			p.idleSince = &since
		} else {
			p.idleSince = nil
		}
	}
	if u.AFK.IsSpecified() {
		p.specified = true
		v, _ := u.AFK.Value()
		p.afk = v
	}
	if u.Activity.IsSpecified() {
		p.specified = true
		if v, ok := u.Activity.Value(); ok {
			act := v
			p.activity = &act
		} else {
			p.activity = nil
		}
	}
	if u.Status.IsSpecified() {
		p.specified = true
		if v, ok := u.Status.Value(); ok {
			p.status = v
		} else {
			p.status = ""
		}
	}
}

// payload renders the merged presence as a wire payload, or nil when no
// presence was ever specified.
func (p *pendingPresence) payload() *frame.Presence {
	if !p.specified {
		return nil
	}
	status := p.status
	if status == "" {
		status = gateway.StatusOnline
	}
	activities := []gateway.Activity{}
	if p.activity != nil {
		activities = append(activities, *p.activity)
	}
	return &frame.Presence{
		Since:      p.idleSince,
		Activities: activities,
		Status:     status,
		AFK:        p.afk,
	}
}

// UpdatePresence merges the specified fields into the durable presence and,
// when connected, sends the full merged presence. While disconnected the
// merge still happens and the result rides the next identify.
func (s *Shard) UpdatePresence(ctx context.Context, update gateway.PresenceUpdate) error {
	s.mu.Lock()
	s.presence.merge(update)
	payload := s.presence.payload()
	s.mu.Unlock()

	if payload == nil || !s.IsConnected() {
		return nil
	}
	d, err := s.codec.Marshal(payload)
	if err != nil {
		return err
	}
	return s.submit(ctx, outboundCommand{
		name:  "update_presence",
		frame: &frame.Frame{Op: frame.OpPresenceUpdate, D: d},
	})
}

// UpdateVoiceState joins, moves, or leaves a voice channel. A nil ChannelID
// leaves the guild's current channel.
func (s *Shard) UpdateVoiceState(ctx context.Context, req gateway.VoiceStateRequest) error {
	if !req.GuildID.IsValid() {
		return &gateway.ValidationError{Field: "guild_id", Reason: "must be a non-zero snowflake"}
	}
	if req.ChannelID != nil && !req.ChannelID.IsValid() {
		return &gateway.ValidationError{Field: "channel_id", Reason: "must be a non-zero snowflake or nil"}
	}
	if !s.IsConnected() {
		return gateway.ErrNotConnected
	}

	selfMute, _ := req.SelfMute.Value()
	selfDeaf, _ := req.SelfDeaf.Value()
	d, err := s.codec.Marshal(&frame.VoiceStateUpdate{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		SelfMute:  selfMute,
		SelfDeaf:  selfDeaf,
	})
	if err != nil {
		return err
	}
	return s.submit(ctx, outboundCommand{
		name:  "update_voice_state",
		frame: &frame.Frame{Op: frame.OpVoiceStateUpdate, D: d},
	})
}

// RequestGuildMembers asks the gateway to stream member chunks for a guild.
// Users is mutually exclusive with Query/Limit; a request for the full
// member list needs the GUILD_MEMBERS intent and presence enrichment needs
// GUILD_PRESENCES on top.
func (s *Shard) RequestGuildMembers(ctx context.Context, req gateway.MemberRequest) error {
	if !req.GuildID.IsValid() {
		return &gateway.ValidationError{Field: "guild_id", Reason: "must be a non-zero snowflake"}
	}
	if len(req.Users) > 0 && (req.Query != "" || req.Limit != 0) {
		return &gateway.ValidationError{Field: "users", Reason: "mutually exclusive with query and limit"}
	}
	if req.Limit < 0 || req.Limit > 100 {
		return &gateway.ValidationError{Field: "limit", Reason: "must be between 0 and 100"}
	}
	if len(req.Users) > 100 {
		return &gateway.ValidationError{Field: "users", Reason: "at most 100 ids per request"}
	}
	if len(req.Nonce) > 32 {
		return &gateway.ValidationError{Field: "nonce", Reason: "must be at most 32 bytes"}
	}

	if len(req.Users) == 0 && req.Query == "" && req.Limit == 0 {
		if missing := s.cfg.Intents.Missing(intents.GuildMembers); missing != 0 {
			return &gateway.MissingIntentError{Missing: missing}
		}
	}
	if presences, _ := req.IncludePresences.Value(); presences {
		if missing := s.cfg.Intents.Missing(intents.GuildMembers | intents.GuildPresences); missing != 0 {
			return &gateway.MissingIntentError{Missing: missing}
		}
	}

	if !s.IsConnected() {
		return gateway.ErrNotConnected
	}

	nonce := req.Nonce
	if nonce == "" {
		nonce = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	payload := &frame.RequestGuildMembers{
		GuildID: req.GuildID,
		Nonce:   nonce,
	}
	if presences, ok := req.IncludePresences.Value(); ok {
		payload.Presences = presences
	}
	if len(req.Users) > 0 {
		payload.UserIDs = req.Users
	} else {
		query := req.Query
		payload.Query = &query
		payload.Limit = req.Limit
	}

	d, err := s.codec.Marshal(payload)
	if err != nil {
		return err
	}
	return s.submit(ctx, outboundCommand{
		name:  "request_guild_members",
		frame: &frame.Frame{Op: frame.OpRequestGuildMembers, D: d},
	})
}

// submit hands a command to the session loop. The loop writes commands
// in-line with frame handling so outbound order matches submission order.
func (s *Shard) submit(ctx context.Context, cmd outboundCommand) error {
	select {
	case s.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closeChan():
		s.countDropped(cmd.name)
		return gateway.ErrNotConnected
	}
}
