package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts between Frames and one wire representation. The format is
// fixed per connection, selected by the `encoding` query parameter at dial
// time. Both codecs round-trip identically for all op types.
type Codec interface {
	// Name is the value used in the dial query parameter.
	Name() string
	// Encode serializes a frame, embedding D verbatim.
	Encode(f *Frame) ([]byte, error)
	// Decode parses one complete frame from a single message.
	Decode(data []byte) (*Frame, error)
	// NewDecoder reads consecutive frames from a continuous stream, as
	// produced by a transport-compressed connection.
	NewDecoder(r io.Reader) Decoder
	// Marshal and Unmarshal handle payload blobs in this codec's format.
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Decoder yields frames from a continuous stream.
type Decoder interface {
	Decode() (*Frame, error)
}

// JSON is the self-describing text format.
var JSON Codec = jsonCodec{}

// CBOR is the dense binary format.
var CBOR Codec = cborCodec{}

// ByName resolves a codec from its wire name.
func ByName(name string) (Codec, error) {
	switch name {
	case "json", "":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", name)
	}
}

type jsonFrame struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(f *Frame) ([]byte, error) {
	wire := jsonFrame{Op: f.Op, D: json.RawMessage(f.D), S: f.S, T: f.T}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding json frame: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (*Frame, error) {
	var wire jsonFrame
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Format: "json", Err: err}
	}
	return &Frame{Op: wire.Op, S: wire.S, T: wire.T, D: []byte(wire.D)}, nil
}

func (c jsonCodec) NewDecoder(r io.Reader) Decoder {
	return &jsonDecoder{dec: json.NewDecoder(r)}
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type jsonDecoder struct {
	dec *json.Decoder
}

func (d *jsonDecoder) Decode() (*Frame, error) {
	var wire jsonFrame
	if err := d.dec.Decode(&wire); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DecodeError{Format: "json", Err: err}
	}
	return &Frame{Op: wire.Op, S: wire.S, T: wire.T, D: []byte(wire.D)}, nil
}

type cborFrame struct {
	Op Opcode          `json:"op"`
	D  cbor.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Encode(f *Frame) ([]byte, error) {
	wire := cborFrame{Op: f.Op, D: cbor.RawMessage(f.D), S: f.S, T: f.T}
	data, err := cbor.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding cbor frame: %w", err)
	}
	return data, nil
}

func (cborCodec) Decode(data []byte) (*Frame, error) {
	var wire cborFrame
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Format: "cbor", Err: err}
	}
	return &Frame{Op: wire.Op, S: wire.S, T: wire.T, D: []byte(wire.D)}, nil
}

func (c cborCodec) NewDecoder(r io.Reader) Decoder {
	return &cborDecoder{dec: cbor.NewDecoder(r)}
}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

type cborDecoder struct {
	dec *cbor.Decoder
}

func (d *cborDecoder) Decode() (*Frame, error) {
	var wire cborFrame
	if err := d.dec.Decode(&wire); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DecodeError{Format: "cbor", Err: err}
	}
	return &Frame{Op: wire.Op, S: wire.S, T: wire.T, D: []byte(wire.D)}, nil
}
