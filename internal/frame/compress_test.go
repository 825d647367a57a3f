package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{in: "", want: CompressionNone},
		{in: "none", want: CompressionNone},
		{in: "payload", want: CompressionPayload},
		{in: "zlib-payload", want: CompressionPayload},
		{in: "transport", want: CompressionTransport},
		{in: "zlib-stream", want: CompressionTransport},
		{in: "gzip", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCompression(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("compressing: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}
	return buf.Bytes()
}

func TestInflatePayload(t *testing.T) {
	plain := []byte(`{"op":11}`)

	// Messages without a zlib header pass through untouched.
	got, err := InflatePayload(plain)
	if err != nil {
		t.Fatalf("passthrough: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("passthrough mutated payload: %q", got)
	}

	got, err = InflatePayload(deflate(t, plain))
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("inflate = %q, want %q", got, plain)
	}

	if _, err := InflatePayload([]byte{0x78, 0x9c, 0x00}); err == nil {
		t.Fatal("expected error for truncated zlib payload")
	}
}

// multiReader feeds the inflater the compressed stream split at arbitrary
// boundaries, the way a transport-compressed connection delivers it across
// many websocket messages.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n == len(c.chunks[0]) {
		c.chunks = c.chunks[1:]
	} else {
		c.chunks[0] = c.chunks[0][n:]
	}
	return n, nil
}

func TestStreamReaderAcrossChunks(t *testing.T) {
	var payload bytes.Buffer
	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	for i := 0; i < 50; i++ {
		frame, err := JSON.Encode(&Frame{Op: OpHeartbeatACK})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		payload.Write(frame)
		if _, err := zw.Write(frame); err != nil {
			t.Fatalf("compress: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Split the compressed stream into 7-byte messages.
	var chunks [][]byte
	raw := zbuf.Bytes()
	for len(raw) > 0 {
		n := min(7, len(raw))
		chunks = append(chunks, raw[:n])
		raw = raw[n:]
	}

	zr, err := NewStreamReader(&chunkReader{chunks: chunks})
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	defer zr.Close()

	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if !bytes.Equal(got, payload.Bytes()) {
		t.Fatalf("inflated stream mismatch: got %d bytes, want %d", len(got), payload.Len())
	}
}
