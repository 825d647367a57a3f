package gateway

import (
	"errors"
	"fmt"

	"github.com/jkaninda/mjumbe/internal/intents"
)

// ErrNotConnected is returned when an operation requires a live gateway
// session and the shard is not in the Connected state.
var ErrNotConnected = errors.New("shard is not connected")

// ErrAlreadyStarted is returned by Start when the shard is already running.
var ErrAlreadyStarted = errors.New("shard already started")

// ValidationError reports malformed command arguments. It is raised
// synchronously to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MissingIntentError reports that an operation requires an intent the shard
// was not identified with. It names the absent flags.
type MissingIntentError struct {
	Missing intents.Intents
}

func (e *MissingIntentError) Error() string {
	return fmt.Sprintf("operation requires the %s intent", e.Missing)
}

// AuthenticationError is fatal: the gateway rejected the shard's credentials
// or identify parameters. The shard stops permanently and does not retry.
type AuthenticationError struct {
	CloseCode int
	Reason    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("gateway rejected session (close code %d): %s", e.CloseCode, e.Reason)
}
