package gateway

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnowflakeJSON(t *testing.T) {
	id := Snowflake(175928847299117063)

	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"175928847299117063"` {
		t.Fatalf("marshal = %s, want quoted decimal", data)
	}

	tests := []struct {
		in   string
		want Snowflake
	}{
		{in: `"175928847299117063"`, want: 175928847299117063},
		{in: `175928847299117063`, want: 175928847299117063},
		{in: `null`, want: 0},
	}
	for _, tt := range tests {
		var got Snowflake
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("unmarshal %s = %d, want %d", tt.in, got, tt.want)
		}
	}

	var got Snowflake
	if err := json.Unmarshal([]byte(`"not-a-number"`), &got); err == nil {
		t.Error("expected error for non-numeric snowflake")
	}
}

func TestSnowflakeTimestamp(t *testing.T) {
	// 175928847299117063 >> 22 = 41944705796 ms past the epoch.
	id := Snowflake(175928847299117063)
	want := time.Date(2016, time.April, 30, 11, 18, 25, 796000000, time.UTC)
	if got := id.Timestamp(); !got.Equal(want) {
		t.Errorf("Timestamp() = %s, want %s", got, want)
	}
}

func TestOmissibleStates(t *testing.T) {
	unspecified := Unspecified[int64]()
	if unspecified.IsSpecified() || unspecified.IsNull() {
		t.Error("zero Omissible must be unspecified")
	}
	if _, ok := unspecified.Value(); ok {
		t.Error("unspecified must not report a value")
	}

	null := Null[int64]()
	if !null.IsSpecified() || !null.IsNull() {
		t.Error("Null must be specified and null")
	}
	if _, ok := null.Value(); ok {
		t.Error("null must not report a value")
	}

	some := Some[int64](1500)
	if !some.IsSpecified() || some.IsNull() {
		t.Error("Some must be specified and not null")
	}
	if v, ok := some.Value(); !ok || v != 1500 {
		t.Errorf("Some.Value() = %d, %v", v, ok)
	}
}

func TestOmissibleZeroValueIsUnspecified(t *testing.T) {
	var update PresenceUpdate
	if update.Status.IsSpecified() || update.AFK.IsSpecified() ||
		update.Activity.IsSpecified() || update.IdleSince.IsSpecified() {
		t.Error("zero PresenceUpdate must leave every field unspecified")
	}
}
