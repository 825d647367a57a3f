package frame

// Gateway close codes.
const (
	CloseNormal               = 1000
	CloseGoingAway            = 1001
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationError  = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimeout       = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidVersion       = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// CloseClass is the reconnect decision derived from a close code.
type CloseClass int

const (
	// ClassResumable covers network-level failures and generic closes;
	// the session resumes with its prior session id and sequence.
	ClassResumable CloseClass = iota
	// ClassReidentify means the session is invalid for resume; the shard
	// clears its session handle and identifies fresh.
	ClassReidentify
	// ClassFatalAuth means the credentials were rejected. The shard stops
	// permanently.
	ClassFatalAuth
	// ClassFatal covers misconfiguration the server will keep rejecting
	// (bad shard topology, version, or intents). No auto-restart.
	ClassFatal
	// ClassNormal is a clean client-initiated closure.
	ClassNormal
)

func (c CloseClass) String() string {
	switch c {
	case ClassResumable:
		return "resumable"
	case ClassReidentify:
		return "reidentify"
	case ClassFatalAuth:
		return "fatal_auth"
	case ClassFatal:
		return "fatal"
	case ClassNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// ClassifyClose maps a transport close code to a reconnect decision.
// Codes the table does not know are treated as resumable network failures.
func ClassifyClose(code int) CloseClass {
	switch code {
	case CloseNormal, CloseGoingAway:
		return ClassNormal
	case CloseAuthenticationError:
		return ClassFatalAuth
	case CloseInvalidShard, CloseShardingRequired, CloseInvalidVersion,
		CloseInvalidIntents, CloseDisallowedIntents:
		return ClassFatal
	case CloseNotAuthenticated, CloseAlreadyAuthenticated, CloseInvalidSeq,
		CloseSessionTimeout:
		return ClassReidentify
	default:
		return ClassResumable
	}
}
