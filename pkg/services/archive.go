package services

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
	"github.com/datakiln/ingest-engine/pkg/models"
)

// archiveEntry is one extracted member awaiting processing. Extraction
// happens up front into scoped buffers so every reader is closed before any
// parsing starts, on success and failure paths alike.
type archiveEntry struct {
	path string
	data []byte
	err  error // extraction failure, recorded as an entry failure
}

// ArchiveExtension reports whether name looks like a supported archive
// container.
func ArchiveExtension(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".tar") ||
		strings.HasSuffix(lower, ".tar.gz") ||
		strings.HasSuffix(lower, ".tgz")
}

func (c *batchCoordinator) ProcessArchive(ctx context.Context, data []byte, name string) *models.BatchReport {
	report := models.NewBatchReport()

	entries, err := extractArchive(data, name, c.maxEntryBytes)
	if err != nil {
		// Corrupt container: the one fatal, whole-operation failure mode.
		report.AddError(apperrors.NewBatchFatalError(name, err).Error())
		c.logger.Warn("archive unreadable", zap.String("archive", name), zap.Error(err))
		return report
	}

	// Unsupported extensions are skipped silently, not failed, and do not
	// count toward the report total.
	var supported []archiveEntry
	for _, entry := range entries {
		if _, ok := MediaTypeFor(entry.path); ok {
			supported = append(supported, entry)
		}
	}

	for _, entry := range supported {
		select {
		case <-ctx.Done():
			report.AddFailure(entry.path, fmt.Sprintf("%s: cancelled before processing: %v", entry.path, ctx.Err()))
			continue
		default:
		}

		if entry.err != nil {
			report.AddFailure(entry.path, fmt.Sprintf("%s: %v", entry.path, entry.err))
			continue
		}
		table, meta, err := c.processor.Process(ctx, entry.data, entry.path, models.IngestHints{})
		if err != nil {
			report.AddFailure(entry.path, err.Error())
			continue
		}
		report.AddSuccess(entry.path, table, meta)
	}

	c.logger.Info("archive processed",
		zap.String("archive", name),
		zap.Int("total", report.Total),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return report
}

// extractArchive lists and reads archive members into memory. Directories
// are dropped here; per-member read failures are carried on the entry so the
// batch can report them without aborting. Each member read is capped at
// maxBytes so a hostile archive cannot expand past the size ceiling.
func extractArchive(data []byte, name string, maxBytes int64) ([]archiveEntry, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(data, maxBytes)
	case strings.HasSuffix(lower, ".tar"):
		return extractTar(tar.NewReader(bytes.NewReader(data)), maxBytes)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		return extractTar(tar.NewReader(gz), maxBytes)
	}
	return nil, fmt.Errorf("unrecognized archive container")
}

func extractZip(data []byte, maxBytes int64) ([]archiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}

	var entries []archiveEntry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if isArchiveJunk(f.Name) {
			continue
		}
		entries = append(entries, readZipEntry(f, maxBytes))
	}
	return entries, nil
}

func readZipEntry(f *zip.File, maxBytes int64) archiveEntry {
	rc, err := f.Open()
	if err != nil {
		return archiveEntry{path: f.Name, err: fmt.Errorf("open entry: %w", err)}
	}
	defer func() { _ = rc.Close() }()

	data, err := readEntryCapped(rc, f.Name, maxBytes)
	if err != nil {
		return archiveEntry{path: f.Name, err: err}
	}
	return archiveEntry{path: f.Name, data: data}
}

func extractTar(tr *tar.Reader, maxBytes int64) ([]archiveEntry, error) {
	var entries []archiveEntry
	first := true
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if first {
				return nil, fmt.Errorf("tar: %w", err)
			}
			// A truncated tail after valid members is an entry problem,
			// not a container problem.
			entries = append(entries, archiveEntry{path: "(truncated)", err: err})
			break
		}
		first = false
		if hdr.Typeflag != tar.TypeReg || isArchiveJunk(hdr.Name) {
			continue
		}
		data, err := readEntryCapped(tr, hdr.Name, maxBytes)
		if err != nil {
			entries = append(entries, archiveEntry{path: hdr.Name, err: err})
			continue
		}
		entries = append(entries, archiveEntry{path: hdr.Name, data: data})
	}
	return entries, nil
}

// readEntryCapped drains one member, failing with ErrFileTooLarge once the
// read passes maxBytes instead of buffering the whole expansion.
func readEntryCapped(r io.Reader, name string, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", name, apperrors.ErrFileTooLarge, maxBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return data, nil
}

// isArchiveJunk filters metadata entries archivers add on macOS and Windows.
func isArchiveJunk(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || base == ".DS_Store" || base == "Thumbs.db"
}
