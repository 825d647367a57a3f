// Package frame implements the gateway wire protocol: the framed message
// envelope, the JSON and CBOR payload codecs, stream decompression, and
// close-code classification.
package frame

import "fmt"

// Opcode identifies the kind of gateway frame.
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpPresenceUpdate      Opcode = 3
	OpVoiceStateUpdate    Opcode = 4
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpRequestGuildMembers Opcode = 8
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatACK        Opcode = 11
)

var opcodeNames = map[Opcode]string{
	OpDispatch:            "DISPATCH",
	OpHeartbeat:           "HEARTBEAT",
	OpIdentify:            "IDENTIFY",
	OpPresenceUpdate:      "PRESENCE_UPDATE",
	OpVoiceStateUpdate:    "VOICE_STATE_UPDATE",
	OpResume:              "RESUME",
	OpReconnect:           "RECONNECT",
	OpRequestGuildMembers: "REQUEST_GUILD_MEMBERS",
	OpInvalidSession:      "INVALID_SESSION",
	OpHello:               "HELLO",
	OpHeartbeatACK:        "HEARTBEAT_ACK",
}

// String returns the opcode's protocol name.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE_%d", int(o))
}

// Frame is one gateway message. S and T are only meaningful on dispatch
// frames. D holds the payload raw, still in the connection's wire encoding,
// so decode→encode round-trips byte-identically.
type Frame struct {
	Op Opcode
	S  int64
	T  string
	D  []byte
}

// DecodeError reports a malformed inbound frame. It is fatal to the
// connection that produced it; the session reconnects rather than trying to
// recover mid-stream.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s frame: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
