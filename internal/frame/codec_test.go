package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "json", want: "json"},
		{name: "", want: "json"},
		{name: "cbor", want: "cbor"},
		{name: "etf", wantErr: true},
	}
	for _, tt := range tests {
		c, err := ByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ByName(%q): expected error, got nil", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ByName(%q): %v", tt.name, err)
		}
		if c.Name() != tt.want {
			t.Errorf("ByName(%q).Name() = %q, want %q", tt.name, c.Name(), tt.want)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			payload, err := codec.Marshal(map[string]any{"heartbeat_interval": 41250})
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			in := &Frame{Op: OpDispatch, S: 42, T: "GUILD_MEMBER_ADD", D: payload}

			wire, err := codec.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := codec.Decode(wire)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Op != in.Op || out.S != in.S || out.T != in.T {
				t.Fatalf("envelope mismatch: got op=%d s=%d t=%q", out.Op, out.S, out.T)
			}
			if !bytes.Equal(out.D, in.D) {
				t.Fatalf("payload mismatch: got %q, want %q", out.D, in.D)
			}

			// Re-encoding a decoded frame is byte-identical.
			wire2, err := codec.Encode(out)
			if err != nil {
				t.Fatalf("re-encode: %v", err)
			}
			if !bytes.Equal(wire, wire2) {
				t.Fatalf("re-encode not byte-identical:\n first=%x\nsecond=%x", wire, wire2)
			}
		})
	}
}

func TestCodecDecodeMalformed(t *testing.T) {
	_, err := JSON.Decode([]byte(`{"op":`))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Format != "json" {
		t.Errorf("DecodeError.Format = %q, want json", decodeErr.Format)
	}

	if _, err := CBOR.Decode([]byte{0xff, 0x00}); !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError for malformed cbor, got %v", err)
	}
}

func TestStreamDecoder(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			var buf bytes.Buffer
			want := []*Frame{
				{Op: OpHello, D: mustMarshal(t, codec, Hello{HeartbeatInterval: 41250})},
				{Op: OpDispatch, S: 1, T: "READY", D: mustMarshal(t, codec, map[string]string{"session_id": "abc"})},
				{Op: OpHeartbeatACK},
			}
			for _, f := range want {
				wire, err := codec.Encode(f)
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				buf.Write(wire)
			}

			dec := codec.NewDecoder(&buf)
			for i, wantFrame := range want {
				got, err := dec.Decode()
				if err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
				if got.Op != wantFrame.Op || got.S != wantFrame.S || got.T != wantFrame.T {
					t.Fatalf("frame %d envelope mismatch: got op=%d s=%d t=%q", i, got.Op, got.S, got.T)
				}
			}
			if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
				t.Fatalf("expected EOF after last frame, got %v", err)
			}
		})
	}
}

func TestStreamDecoderMalformed(t *testing.T) {
	dec := JSON.NewDecoder(strings.NewReader(`{"op":10}{"op":`))
	if _, err := dec.Decode(); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	var decodeErr *DecodeError
	if _, err := dec.Decode(); !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError mid-stream, got %v", err)
	}
}

func mustMarshal(t *testing.T, codec Codec, v any) []byte {
	t.Helper()
	data, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestOpcodeString(t *testing.T) {
	if got := OpHello.String(); got != "HELLO" {
		t.Errorf("OpHello.String() = %q", got)
	}
	if got := Opcode(99).String(); got != "OPCODE_99" {
		t.Errorf("Opcode(99).String() = %q", got)
	}
}
