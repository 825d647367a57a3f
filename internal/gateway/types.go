package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Snowflake is a platform object identifier. JSON encodes it as a decimal
// string (the wire convention for 64-bit ids); CBOR keeps the integer form.
type Snowflake uint64

// String returns the decimal representation.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsValid reports whether the snowflake is non-zero.
func (s Snowflake) IsValid() bool {
	return s != 0
}

// Timestamp extracts the creation time embedded in the snowflake.
func (s Snowflake) Timestamp() time.Time {
	const epoch = 1420070400000 // ms
	ms := int64(s>>22) + epoch
	return time.UnixMilli(ms).UTC()
}

// MarshalJSON encodes the snowflake as a quoted decimal string.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts both the quoted string and bare integer forms.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		str = unquoted
	}
	if str == "null" || str == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing snowflake %q: %w", str, err)
	}
	*s = Snowflake(v)
	return nil
}

// ParseSnowflake parses a decimal id string.
func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing snowflake %q: %w", s, err)
	}
	return Snowflake(v), nil
}

// Omissible is a tri-state value: unspecified (leave unchanged), explicit
// null (clear), or a concrete value. Presence merge semantics depend on the
// distinction, so a sentinel value cannot stand in for "unspecified".
type Omissible[T any] struct {
	specified bool
	null      bool
	value     T
}

// Some returns an Omissible carrying a concrete value.
func Some[T any](v T) Omissible[T] {
	return Omissible[T]{specified: true, value: v}
}

// Null returns an Omissible carrying an explicit null.
func Null[T any]() Omissible[T] {
	return Omissible[T]{specified: true, null: true}
}

// Unspecified returns the zero Omissible, meaning "leave unchanged".
func Unspecified[T any]() Omissible[T] {
	return Omissible[T]{}
}

// IsSpecified reports whether the value was given at all (value or null).
func (o Omissible[T]) IsSpecified() bool { return o.specified }

// IsNull reports whether the value is an explicit null.
func (o Omissible[T]) IsNull() bool { return o.specified && o.null }

// Value returns the concrete value and whether one is present.
func (o Omissible[T]) Value() (T, bool) {
	if !o.specified || o.null {
		var zero T
		return zero, false
	}
	return o.value, true
}

// Status is the user-visible presence status.
type Status string

const (
	StatusOnline       Status = "online"
	StatusIdle         Status = "idle"
	StatusDoNotDisturb Status = "dnd"
	StatusInvisible    Status = "invisible"
	StatusOffline      Status = "offline"
)

// ActivityType distinguishes the kinds of activity shown in a presence.
type ActivityType int

const (
	ActivityPlaying ActivityType = iota
	ActivityStreaming
	ActivityListening
	ActivityWatching
	ActivityCustom
	ActivityCompeting
)

// Activity is the activity portion of a presence.
type Activity struct {
	Name string       `json:"name" yaml:"name"`
	Type ActivityType `json:"type" yaml:"type"`
	URL  string       `json:"url,omitempty" yaml:"url,omitempty"`
}
