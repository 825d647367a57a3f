package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compression selects how inbound payloads are decompressed.
type Compression string

const (
	// CompressionNone disables decompression.
	CompressionNone Compression = ""
	// CompressionPayload inflates individual binary messages that carry a
	// zlib header. Enabled through the identify payload's compress flag.
	CompressionPayload Compression = "payload"
	// CompressionTransport treats the whole connection as one continuous
	// zlib stream, requested with the compress=zlib-stream dial parameter.
	CompressionTransport Compression = "transport"
)

// ParseCompression resolves a config value to a Compression mode.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "payload", "zlib-payload":
		return CompressionPayload, nil
	case "transport", "zlib-stream":
		return CompressionTransport, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression mode %q", s)
	}
}

const zlibHeader = 0x78

// InflatePayload inflates a single zlib-compressed message. Messages without
// a zlib header pass through untouched, so the call is safe on mixed
// connections where only large payloads are compressed.
func InflatePayload(msg []byte) ([]byte, error) {
	if len(msg) < 2 || msg[0] != zlibHeader {
		return msg, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(msg))
	if err != nil {
		return nil, fmt.Errorf("opening zlib payload: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflating payload: %w", err)
	}
	return out, nil
}

// NewStreamReader wraps a continuous compressed source in a zlib inflater.
// The constructor blocks until the stream header arrives, so it must run on
// the goroutine that owns reads. Any inflate failure afterwards is fatal to
// the connection; callers reconnect instead of resynchronizing in place.
func NewStreamReader(src io.Reader) (io.ReadCloser, error) {
	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	return zr, nil
}
