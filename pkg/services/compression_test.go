package services

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = xw.Write(data)
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func TestDecompressIfNeeded(t *testing.T) {
	payload := []byte("a,b\n1,2\n")

	tests := []struct {
		name     string
		file     string
		compress func(*testing.T, []byte) []byte
	}{
		{"gzip", "data.csv.gz", gzipBytes},
		{"zstd", "data.csv.zst", zstdBytes},
		{"xz", "data.csv.xz", xzBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, inner, err := decompressIfNeeded(tt.compress(t, payload), tt.file, 1<<20)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
			assert.Equal(t, "data.csv", inner)
		})
	}
}

func TestDecompressPassThrough(t *testing.T) {
	payload := []byte("a,b\n1,2\n")

	out, inner, err := decompressIfNeeded(payload, "plain.csv", 1<<20)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.Equal(t, "plain.csv", inner)
}

func TestDecompressCorruptInput(t *testing.T) {
	_, _, err := decompressIfNeeded([]byte("definitely not zstd"), "data.csv.zst", 1<<20)
	assert.Error(t, err)
}

// A stream that expands past the ceiling must fail at the cap rather than
// being buffered in full first.
func TestDecompressStopsAtSizeLimit(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		compress func(*testing.T, []byte) []byte
	}{
		{"gzip", "bomb.csv.gz", gzipBytes},
		{"zstd", "bomb.csv.zst", zstdBytes},
		{"xz", "bomb.csv.xz", xzBytes},
	}

	payload := bytes.Repeat([]byte("0"), 4096)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decompressIfNeeded(tt.compress(t, payload), tt.file, 100)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrFileTooLarge)
		})
	}
}
