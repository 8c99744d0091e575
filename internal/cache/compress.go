package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies the compression codec applied to a stored payload.
// It is persisted as a one-byte prefix on every disk-tier value so a
// payload remains self-describing across schema/codec changes (§4.2).
type Algorithm byte

const (
	AlgorithmNone   Algorithm = 0
	AlgorithmSnappy Algorithm = 1
	AlgorithmLZ4    Algorithm = 2
)

// compressionMinSize is the payload size below which compression is
// skipped, since the framing overhead outweighs the savings.
const compressionMinSize = 1024 * 1024 // 1 MiB, per §4.2

// ErrDecompression is returned when a stored payload fails to decompress.
var ErrDecompression = errors.New("cache: decompression failed")

// encode compresses content when it crosses compressionMinSize, prefixing
// the result with a one-byte algorithm tag so decode is self-describing.
func encode(content []byte) ([]byte, error) {
	if len(content) < compressionMinSize {
		return append([]byte{byte(AlgorithmNone)}, content...), nil
	}

	compressed := snappy.Encode(nil, content)
	return append([]byte{byte(AlgorithmSnappy)}, compressed...), nil
}

// encodeWith forces a specific algorithm, used by tests and by callers that
// want LZ4's better ratio at the cost of slower compression.
func encodeWith(content []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return append([]byte{byte(AlgorithmNone)}, content...), nil
	case AlgorithmSnappy:
		compressed := snappy.Encode(nil, content)
		return append([]byte{byte(AlgorithmSnappy)}, compressed...), nil
	case AlgorithmLZ4:
		var buf bytes.Buffer
		buf.WriteByte(byte(AlgorithmLZ4))
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, fmt.Errorf("lz4 compression: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compression close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("cache: unknown compression algorithm %d", algo)
	}
}

// decode strips the algorithm tag and transparently decompresses the
// payload, per §8 ("disk decompression is always transparent on read").
func decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecompression)
	}
	algo := Algorithm(stored[0])
	body := stored[1:]

	switch algo {
	case AlgorithmNone:
		return body, nil
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return out, nil
	case AlgorithmLZ4:
		r := lz4.NewReader(bytes.NewReader(body))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm tag %d", ErrDecompression, algo)
	}
}
