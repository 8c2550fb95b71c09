package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
	"github.com/datakiln/ingest-engine/pkg/config"
	"github.com/datakiln/ingest-engine/pkg/models"
)

// FormatProcessor converts one raw input into the canonical typed table plus
// its metadata record. Dispatches on extension; every format shares the same
// post-processing: name cleanup, null pruning, column ceiling, inference.
type FormatProcessor interface {
	Process(ctx context.Context, data []byte, name string, hints models.IngestHints) (*models.Table, *models.FileMetadata, error)
}

type formatProcessor struct {
	validator  ValidationService
	inferencer TypeInferenceService
	cfg        config.IngestConfig
	logger     *zap.Logger
}

// NewFormatProcessor creates a processor with its validator and inferencer.
func NewFormatProcessor(
	validator ValidationService,
	inferencer TypeInferenceService,
	cfg config.IngestConfig,
	logger *zap.Logger,
) FormatProcessor {
	return &formatProcessor{
		validator:  validator,
		inferencer: inferencer,
		cfg:        cfg,
		logger:     logger.Named("format-processor"),
	}
}

func (p *formatProcessor) Process(ctx context.Context, data []byte, name string, hints models.IngestHints) (*models.Table, *models.FileMetadata, error) {
	if findings := p.validator.Validate(data, name); len(findings) > 0 {
		return nil, nil, apperrors.NewValidationError(name, findings)
	}

	mediaType, _ := MediaTypeFor(name)
	meta := &models.FileMetadata{
		Name:        name,
		SizeBytes:   int64(len(data)),
		MediaType:   mediaType,
		ContentHash: hashContent(data),
		Warnings:    []string{},
		IngestedAt:  time.Now().UTC(),
	}

	inner, innerName, err := decompressIfNeeded(data, name, p.cfg.MaxFileSizeBytes)
	if err != nil {
		if errors.Is(err, apperrors.ErrFileTooLarge) {
			return nil, nil, apperrors.NewValidationError(name, []error{err})
		}
		return nil, nil, apperrors.NewParseError(name, "compressed", err)
	}

	ext, _ := splitExtensions(innerName)

	var (
		table    *models.Table
		warnings []string
	)
	switch {
	case delimitedExtensions[ext]:
		table, warnings, err = p.parseDelimited(inner, name, hints, meta)
	case ext == ".xlsx" || ext == ".xls":
		table, warnings, err = p.parseSpreadsheet(inner, name, hints, meta)
	case ext == ".json":
		table, warnings, err = p.parseJSON(inner, name)
	case ext == ".jsonl" || ext == ".ndjson":
		table, warnings, err = p.parseJSONLines(inner, name)
	case ext == ".parquet":
		table, warnings, err = p.parseParquet(ctx, inner, name)
	default:
		err = fmt.Errorf("%s: %w", name, apperrors.ErrUnsupportedFormat)
	}
	if err != nil {
		if _, ok := err.(*apperrors.ParseError); !ok {
			err = apperrors.NewParseError(name, formatLabel(ext), err)
		}
		return nil, nil, err
	}
	meta.Warnings = append(meta.Warnings, warnings...)

	if err := p.postProcess(table, meta); err != nil {
		return nil, nil, err
	}

	p.logger.Debug("processed file",
		zap.String("file", name),
		zap.String("content_hash", meta.ContentHash),
		zap.Int("rows", meta.RowCount),
		zap.Int("columns", meta.ColumnCount),
		zap.Int("warnings", len(meta.Warnings)))

	return table, meta, nil
}

// postProcess applies the format-independent cleanup pass: clean and
// de-duplicate column names, drop all-null rows and columns, enforce the
// column ceiling, apply the missing-value policy, then run inference.
func (p *formatProcessor) postProcess(table *models.Table, meta *models.FileMetadata) error {
	names := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = models.CleanColumnName(col.Name, i)
	}
	for i, renamed := range models.RenameDuplicates(names) {
		table.Columns[i].Name = renamed
	}

	for _, dropped := range table.DropNullColumns() {
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("%s: dropped empty column %q", meta.Name, dropped))
	}
	if removed := table.DropNullRows(); removed > 0 {
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("%s: dropped %d empty rows", meta.Name, removed))
	}

	if table.NumCols() > p.cfg.MaxColumns {
		return apperrors.NewParseError(meta.Name, "post-process",
			fmt.Errorf("%w: %d columns, limit %d", apperrors.ErrTooManyColumns, table.NumCols(), p.cfg.MaxColumns))
	}

	p.applyMissingValuePolicy(table, meta)

	meta.ConversionLog = p.inferencer.InferTable(table)

	// Conversion can null out cells that were non-empty text, so a second
	// sweep is needed to keep the no-fully-null-rows guarantee.
	if removed := table.DropNullRows(); removed > 0 {
		meta.Warnings = append(meta.Warnings,
			fmt.Sprintf("%s: dropped %d rows emptied by type conversion", meta.Name, removed))
	}

	meta.RowCount = table.NumRows()
	meta.ColumnCount = table.NumCols()
	return nil
}

// applyMissingValuePolicy handles columns with more than half of their
// values missing: warn (default) or drop, per configuration.
func (p *formatProcessor) applyMissingValuePolicy(table *models.Table, meta *models.FileMetadata) {
	rows := table.NumRows()
	if rows == 0 {
		return
	}
	kept := table.Columns[:0]
	for _, col := range table.Columns {
		missing := rows - col.NonNullCount()
		if missing*2 <= rows {
			kept = append(kept, col)
			continue
		}
		switch p.cfg.MissingValuePolicy {
		case "drop":
			meta.Warnings = append(meta.Warnings,
				fmt.Sprintf("%s: dropped column %q (%d/%d values missing)", meta.Name, col.Name, missing, rows))
		default:
			meta.Warnings = append(meta.Warnings,
				fmt.Sprintf("%s: column %q has %d/%d values missing", meta.Name, col.Name, missing, rows))
			kept = append(kept, col)
		}
	}
	table.Columns = kept
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func formatLabel(ext string) string {
	switch ext {
	case ".csv", ".tsv", ".txt":
		return "delimited text"
	case ".xlsx", ".xls":
		return "spreadsheet"
	case ".json":
		return "json"
	case ".jsonl", ".ndjson":
		return "json lines"
	case ".parquet":
		return "parquet"
	}
	return "unknown"
}
