package services

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
)

// decompressIfNeeded unwraps a single compressed input (not an archive
// container) based on its trailing extension. Returns the inner bytes and
// the name with the compression extension stripped; inputs without a
// compression extension pass through untouched.
//
// Every reader is capped at maxBytes so a hostile stream cannot expand past
// the size ceiling in memory before it is checked.
func decompressIfNeeded(data []byte, name string, maxBytes int64) ([]byte, string, error) {
	_, cext := splitExtensions(name)
	if cext == "" {
		return data, name, nil
	}
	inner := name[:len(name)-len(cext)]

	capped := func(r io.Reader) io.Reader { return io.LimitReader(r, maxBytes+1) }

	var (
		out []byte
		err error
	)
	switch cext {
	case ".gz":
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = io.ReadAll(capped(gz))
			if cerr := gz.Close(); err == nil && int64(len(out)) <= maxBytes {
				err = cerr
			}
		}
	case ".bz2":
		out, err = io.ReadAll(capped(bzip2.NewReader(bytes.NewReader(data))))
	case ".zst":
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = io.ReadAll(capped(dec))
			dec.Close()
		}
	case ".xz":
		var xzr *xz.Reader
		xzr, err = xz.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = io.ReadAll(capped(xzr))
		}
	default:
		return data, name, nil
	}

	// The limit check comes first: hitting the cap leaves the reader
	// mid-stream, and whatever error that produced is beside the point.
	if int64(len(out)) > maxBytes {
		return nil, "", fmt.Errorf("%s: %w after decompression (limit %d bytes)",
			name, apperrors.ErrFileTooLarge, maxBytes)
	}
	if err != nil {
		return nil, "", fmt.Errorf("decompress %s (%s): %w", name, strings.TrimPrefix(cext, "."), err)
	}
	return out, inner, nil
}
