// Package compress encodes exports for storage with snappy or lz4.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/edgecomet/pagegraph/pkg/types"
)

// MinSize is the smallest payload worth compressing
const MinSize = 1024

// ErrDecompression is returned when stored data cannot be decoded.
// Use errors.Is(err, ErrDecompression) to check for it.
var ErrDecompression = errors.New("decompression failed")

// Compress encodes content with algorithm and returns the codec actually
// applied: payloads under MinSize are stored as-is.
func Compress(content []byte, algorithm types.CompressionFormat) ([]byte, types.CompressionFormat, error) {
	if len(content) < MinSize {
		return content, types.CompressionNone, nil
	}

	switch algorithm {
	case types.CompressionSnappy:
		return snappy.Encode(nil, content), types.CompressionSnappy, nil

	case types.CompressionLZ4:
		// stream format embeds the content size
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), types.CompressionLZ4, nil

	default:
		return content, types.CompressionNone, nil
	}
}

// Decompress decodes content written by Compress with algorithm
func Decompress(content []byte, algorithm types.CompressionFormat) ([]byte, error) {
	switch algorithm {
	case types.CompressionSnappy:
		out, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %w", ErrDecompression, err)
		}
		return out, nil

	case types.CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrDecompression, err)
		}
		return out, nil

	case types.CompressionNone, "":
		return content, nil

	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrDecompression, algorithm)
	}
}
