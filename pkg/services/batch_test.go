package services

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/models"
)

func newTestCoordinator() BatchCoordinator {
	cfg := testIngestConfig()
	return NewBatchCoordinator(newTestProcessor(cfg), cfg, zap.NewNop())
}

func TestProcessBatchMixedOutcomes(t *testing.T) {
	c := newTestCoordinator()

	files := []BatchFile{
		{Name: "good.csv", Data: []byte("a,b\n1,2\n")},
		{Name: "bad.docx", Data: []byte("word doc")},
		{Name: "also_good.json", Data: []byte(`[{"x": 1}]`)},
	}

	report := c.ProcessBatch(context.Background(), files)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Errors)

	assert.Equal(t, []string{"good.csv", "bad.docx", "also_good.json"}, report.EntryOrder())
	assert.Equal(t, "success", report.Entries["good.csv"].Status)
	assert.Equal(t, "failure", report.Entries["bad.docx"].Status)
	assert.Contains(t, report.Entries["bad.docx"].Error, "unsupported")
	require.NotNil(t, report.Entries["good.csv"].Table)
	assert.Equal(t, 1, report.Entries["good.csv"].Table.NumRows())
}

func TestProcessBatchEmpty(t *testing.T) {
	report := newTestCoordinator().ProcessBatch(context.Background(), nil)

	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.EntryOrder())
}

func TestProcessBatchOrderStableUnderConcurrency(t *testing.T) {
	c := newTestCoordinator()

	var files []BatchFile
	var names []string
	for _, n := range []string{"e.csv", "a.csv", "z.csv", "m.csv", "b.csv"} {
		files = append(files, BatchFile{Name: n, Data: []byte("x\n1\n")})
		names = append(names, n)
	}

	report := c.ProcessBatch(context.Background(), files)

	assert.Equal(t, names, report.EntryOrder())
	assert.Equal(t, 5, report.Processed)
}

func TestProcessBatchHints(t *testing.T) {
	c := newTestCoordinator()

	files := []BatchFile{
		{
			Name:  "pipes.csv",
			Data:  []byte("a|b\n1|2\n"),
			Hints: models.IngestHints{Delimiter: "|"},
		},
	}

	report := c.ProcessBatch(context.Background(), files)

	require.Equal(t, 1, report.Processed)
	assert.Equal(t, "|", report.Entries["pipes.csv"].Metadata.Delimiter)
}

func buildZip(t *testing.T, entries map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestProcessArchiveZip(t *testing.T) {
	c := newTestCoordinator()

	data := buildZip(t, map[string][]byte{
		"one.csv":     []byte("a\n1\n"),
		"two.csv":     []byte("b\n2\n"),
		"broken.xlsx": []byte("not a workbook"),
	}, []string{"one.csv", "two.csv", "broken.xlsx"})

	report := c.ProcessArchive(context.Background(), data, "bundle.zip")

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{"one.csv", "two.csv", "broken.xlsx"}, report.EntryOrder())
	assert.Equal(t, "failure", report.Entries["broken.xlsx"].Status)
}

// An archive member that expands past the size ceiling fails as one entry,
// capped at extraction time, without sinking the rest of the batch.
func TestProcessArchiveEntryOverSizeLimit(t *testing.T) {
	cfg := testIngestConfig()
	cfg.MaxFileSizeBytes = 64
	c := NewBatchCoordinator(newTestProcessor(cfg), cfg, zap.NewNop())

	data := buildZip(t, map[string][]byte{
		"small.csv": []byte("a\n1\n"),
		"huge.csv":  bytes.Repeat([]byte("1\n"), 10000),
	}, []string{"small.csv", "huge.csv"})

	report := c.ProcessArchive(context.Background(), data, "bundle.zip")

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "success", report.Entries["small.csv"].Status)
	assert.Equal(t, "failure", report.Entries["huge.csv"].Status)
	assert.Contains(t, report.Entries["huge.csv"].Error, "exceeds maximum size")
}

func TestProcessArchiveSkipsUnsupportedEntries(t *testing.T) {
	c := newTestCoordinator()

	data := buildZip(t, map[string][]byte{
		"data.csv":   []byte("a\n1\n"),
		"readme.md":  []byte("# notes"),
		"image.png":  {0x89, 0x50, 0x4E, 0x47},
		"extra.json": []byte(`[{"x": 1}]`),
	}, []string{"data.csv", "readme.md", "image.png", "extra.json"})

	report := c.ProcessArchive(context.Background(), data, "mixed.zip")

	// Unsupported extensions are skipped silently and never counted.
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, []string{"data.csv", "extra.json"}, report.EntryOrder())
}

func TestProcessArchiveSkipsJunkEntries(t *testing.T) {
	c := newTestCoordinator()

	data := buildZip(t, map[string][]byte{
		"__MACOSX/._data.csv": []byte("resource fork"),
		"sub/.DS_Store":       []byte("finder"),
		"data.csv":            []byte("a\n1\n"),
	}, []string{"__MACOSX/._data.csv", "sub/.DS_Store", "data.csv"})

	report := c.ProcessArchive(context.Background(), data, "mac.zip")

	assert.Equal(t, 1, report.Total)
	assert.Equal(t, []string{"data.csv"}, report.EntryOrder())
}

func TestProcessArchiveCorruptContainer(t *testing.T) {
	c := newTestCoordinator()

	report := c.ProcessArchive(context.Background(), []byte("this is not a zip"), "broken.zip")

	assert.Equal(t, 0, report.Total)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "broken.zip")
}

func TestProcessArchiveTarGz(t *testing.T) {
	c := newTestCoordinator()

	var inner bytes.Buffer
	tw := tar.NewWriter(&inner)
	content := []byte("a,b\n1,2\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "rows.csv", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err = gw.Write(inner.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	report := c.ProcessArchive(context.Background(), compressed.Bytes(), "bundle.tar.gz")

	require.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Entries["rows.csv"].Table.NumRows())
}

func TestArchiveExtension(t *testing.T) {
	assert.True(t, ArchiveExtension("x.zip"))
	assert.True(t, ArchiveExtension("x.tar"))
	assert.True(t, ArchiveExtension("x.tar.gz"))
	assert.True(t, ArchiveExtension("x.TGZ"))
	assert.False(t, ArchiveExtension("x.csv"))
	assert.False(t, ArchiveExtension("x.csv.gz"))
}
