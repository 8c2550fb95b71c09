package models

import "time"

// FileMetadata describes one ingested input. Created once per file and
// immutable after the processor hands it to the caller. ContentHash is the
// hex SHA-256 of the raw bytes; collaborators use it as a stable cache key.
type FileMetadata struct {
	Name          string   `json:"name"`
	SizeBytes     int64    `json:"size_bytes"`
	MediaType     string   `json:"declared_media_type"`
	Encoding      string   `json:"encoding,omitempty"`  // text formats only
	Delimiter     string   `json:"delimiter,omitempty"` // text formats only
	SheetNames    []string `json:"sheet_names,omitempty"`
	ContentHash   string   `json:"content_hash"`
	RowCount      int      `json:"row_count"`
	ColumnCount   int      `json:"column_count"`
	Warnings      []string `json:"validation_errors"`
	ConversionLog []ConversionLogEntry `json:"conversion_log,omitempty"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// ConversionLogEntry records one column that changed type during inference,
// with the first few converted values for auditability.
type ConversionLogEntry struct {
	Column       string   `json:"column"`
	FromType     DType    `json:"from_type"`
	ToType       DType    `json:"to_type"`
	SampleValues []string `json:"sample_values"`
}

// IngestHints carries caller overrides for processing. Zero values mean
// auto-detect.
type IngestHints struct {
	Encoding  string `json:"encoding,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	SheetName string `json:"sheet_name,omitempty"`
}
