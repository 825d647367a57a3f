package intents

import "testing"

func TestHasAndMissing(t *testing.T) {
	set := Guilds | GuildMembers

	if !set.Has(Guilds) {
		t.Error("expected Guilds to be set")
	}
	if !set.Has(Guilds | GuildMembers) {
		t.Error("expected combined flags to be set")
	}
	if set.Has(GuildPresences) {
		t.Error("GuildPresences must not be set")
	}

	if missing := set.Missing(GuildPresences | Guilds); missing != GuildPresences {
		t.Errorf("Missing = %s, want GUILD_PRESENCES", missing)
	}
	if missing := set.Missing(Guilds); missing != 0 {
		t.Errorf("Missing = %s, want none", missing)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		set  Intents
		want string
	}{
		{set: None, want: "NONE"},
		{set: Guilds, want: "GUILDS"},
		{set: Guilds | GuildPresences, want: "GUILDS|GUILD_PRESENCES"},
		{set: AutoModerationExecution, want: "AUTO_MODERATION_EXECUTION"},
	}
	for _, tt := range tests {
		if got := tt.set.String(); got != tt.want {
			t.Errorf("Intents(%d).String() = %q, want %q", tt.set, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	if bit, ok := Parse("guild_members"); !ok || bit != GuildMembers {
		t.Errorf("Parse(guild_members) = %v, %v", bit, ok)
	}
	if bit, ok := Parse(" GUILDS "); !ok || bit != Guilds {
		t.Errorf("Parse( GUILDS ) = %v, %v", bit, ok)
	}
	if _, ok := Parse("NOT_AN_INTENT"); ok {
		t.Error("Parse accepted an unknown intent")
	}
}

func TestUnprivilegedExcludesPrivileged(t *testing.T) {
	for _, priv := range []Intents{GuildMembers, GuildPresences, MessageContent} {
		if Unprivileged.Has(priv) {
			t.Errorf("Unprivileged must not include %s", priv)
		}
	}
}
