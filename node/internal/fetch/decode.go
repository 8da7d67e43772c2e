package fetch

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// acceptEncoding advertises the encodings decodeBody understands.
const acceptEncoding = "zstd, lz4, identity"

// decodeBody wraps body in a decoder for the given Content-Encoding and
// returns the number of decoded bytes read until EOF.
func decodeBody(body io.Reader, encoding string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.Copy(io.Discard, body)

	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return 0, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		n, err := io.Copy(io.Discard, dec)
		if err != nil {
			return n, fmt.Errorf("zstd decode: %w", err)
		}
		return n, nil

	case "lz4":
		n, err := io.Copy(io.Discard, lz4.NewReader(body))
		if err != nil {
			return n, fmt.Errorf("lz4 decode: %w", err)
		}
		return n, nil

	default:
		return 0, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
