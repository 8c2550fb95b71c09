package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/datakiln/ingest-engine/pkg/database"
	"github.com/datakiln/ingest-engine/pkg/models"
)

// IngestionRepository provides data access for the ingestion history.
// Files are keyed by content hash, so re-ingesting identical bytes updates
// the existing row instead of inserting a duplicate.
type IngestionRepository interface {
	// Record upserts the metadata for a processed file.
	Record(ctx context.Context, meta *models.FileMetadata) error

	// GetByHash retrieves metadata by content hash. Returns (nil, nil) when
	// the hash has never been seen.
	GetByHash(ctx context.Context, contentHash string) (*models.FileMetadata, error)

	// List retrieves the most recently ingested files, newest first.
	List(ctx context.Context, limit int) ([]*models.FileMetadata, error)

	// DeleteOlderThan removes history rows ingested before the cutoff.
	// Returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type ingestionRepository struct {
	db *database.DB
}

// NewIngestionRepository creates a new ingestion history repository.
func NewIngestionRepository(db *database.DB) IngestionRepository {
	return &ingestionRepository{db: db}
}

var _ IngestionRepository = (*ingestionRepository)(nil)

func (r *ingestionRepository) Record(ctx context.Context, meta *models.FileMetadata) error {
	warningsJSON, err := marshalJSONB(meta.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}
	conversionJSON, err := marshalJSONB(meta.ConversionLog)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion log: %w", err)
	}
	sheetsJSON, err := marshalJSONB(meta.SheetNames)
	if err != nil {
		return fmt.Errorf("failed to marshal sheet names: %w", err)
	}

	query := `
		INSERT INTO ingest_files (
			content_hash, name, size_bytes, media_type,
			encoding, delimiter, sheet_names,
			row_count, column_count,
			warnings, conversion_log, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (content_hash) DO UPDATE SET
			name = EXCLUDED.name,
			size_bytes = EXCLUDED.size_bytes,
			media_type = EXCLUDED.media_type,
			encoding = EXCLUDED.encoding,
			delimiter = EXCLUDED.delimiter,
			sheet_names = EXCLUDED.sheet_names,
			row_count = EXCLUDED.row_count,
			column_count = EXCLUDED.column_count,
			warnings = EXCLUDED.warnings,
			conversion_log = EXCLUDED.conversion_log,
			ingested_at = EXCLUDED.ingested_at`

	_, err = r.db.Exec(ctx, query,
		meta.ContentHash,
		meta.Name,
		meta.SizeBytes,
		meta.MediaType,
		meta.Encoding,
		meta.Delimiter,
		sheetsJSON,
		meta.RowCount,
		meta.ColumnCount,
		warningsJSON,
		conversionJSON,
		meta.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingested file: %w", err)
	}

	return nil
}

func (r *ingestionRepository) GetByHash(ctx context.Context, contentHash string) (*models.FileMetadata, error) {
	query := `
		SELECT content_hash, name, size_bytes, media_type,
		       encoding, delimiter, sheet_names,
		       row_count, column_count,
		       warnings, conversion_log, ingested_at
		FROM ingest_files
		WHERE content_hash = $1`

	meta, err := scanFileMetadata(r.db.QueryRow(ctx, query, contentHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingested file: %w", err)
	}

	return meta, nil
}

func (r *ingestionRepository) List(ctx context.Context, limit int) ([]*models.FileMetadata, error) {
	query := `
		SELECT content_hash, name, size_bytes, media_type,
		       encoding, delimiter, sheet_names,
		       row_count, column_count,
		       warnings, conversion_log, ingested_at
		FROM ingest_files
		ORDER BY ingested_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingested files: %w", err)
	}
	defer rows.Close()

	var results []*models.FileMetadata
	for rows.Next() {
		meta, err := scanFileMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingested file: %w", err)
		}
		results = append(results, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingested files: %w", err)
	}

	return results, nil
}

func (r *ingestionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM ingest_files WHERE ingested_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old ingest history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileMetadata(row rowScanner) (*models.FileMetadata, error) {
	var (
		meta           models.FileMetadata
		sheetsJSON     []byte
		warningsJSON   []byte
		conversionJSON []byte
	)

	err := row.Scan(
		&meta.ContentHash,
		&meta.Name,
		&meta.SizeBytes,
		&meta.MediaType,
		&meta.Encoding,
		&meta.Delimiter,
		&sheetsJSON,
		&meta.RowCount,
		&meta.ColumnCount,
		&warningsJSON,
		&conversionJSON,
		&meta.IngestedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(sheetsJSON, &meta.SheetNames); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sheet names: %w", err)
	}
	if err := unmarshalJSONB(warningsJSON, &meta.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	if err := unmarshalJSONB(conversionJSON, &meta.ConversionLog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversion log: %w", err)
	}

	return &meta, nil
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSONB(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
