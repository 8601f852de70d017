package compress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/pagegraph/pkg/types"
)

func samplePayload() []byte {
	return bytes.Repeat([]byte(`{"type":"js","url":"https://cdn.example.com/app.js","response_code":200}`), 64)
}

func TestCompress_RoundTrip(t *testing.T) {
	for _, algo := range []types.CompressionFormat{types.CompressionSnappy, types.CompressionLZ4, types.CompressionNone} {
		t.Run(string(algo), func(t *testing.T) {
			content := samplePayload()

			compressed, applied, err := Compress(content, algo)
			require.NoError(t, err)
			assert.Equal(t, algo, applied)
			if algo != types.CompressionNone {
				assert.Less(t, len(compressed), len(content))
			}

			restored, err := Decompress(compressed, applied)
			require.NoError(t, err)
			assert.Equal(t, content, restored)
		})
	}
}

func TestCompress_SmallPayloadIsKept(t *testing.T) {
	content := []byte(`{"resources":[]}`)
	out, applied, err := Compress(content, types.CompressionSnappy)
	require.NoError(t, err)
	assert.Equal(t, types.CompressionNone, applied)
	assert.Equal(t, content, out)
}

func TestCompress_UnknownAlgorithm(t *testing.T) {
	out, applied, err := Compress(samplePayload(), "gzip")
	require.NoError(t, err)
	assert.Equal(t, types.CompressionNone, applied)
	assert.Equal(t, samplePayload(), out)
}

func TestDecompress_Errors(t *testing.T) {
	tests := []struct {
		name string
		algo types.CompressionFormat
		data []byte
	}{
		{"corrupt snappy", types.CompressionSnappy, []byte{0xff, 0xff, 0xff, 0xff, 0xff}},
		{"corrupt lz4", types.CompressionLZ4, []byte("definitely not lz4")},
		{"unknown codec", "zstd", []byte("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.data, tt.algo)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecompression))
		})
	}
}
