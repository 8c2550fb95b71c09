package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/datakiln/ingest-engine/pkg/fallback"
	"github.com/datakiln/ingest-engine/pkg/models"
)

// parseResult pairs a parsed table with warnings accumulated on the way.
type parseResult struct {
	table    *models.Table
	warnings []string
}

// parseDelimited parses CSV/TSV/TXT content with a three-stage fallback
// chain: strict, skip-malformed-lines, fully permissive. The last stage
// re-detects the separator and replaces undecodable bytes; it fails only
// when not even a header line can be recovered.
func (p *formatProcessor) parseDelimited(data []byte, name string, hints models.IngestHints, meta *models.FileMetadata) (*models.Table, []string, error) {
	encoding := hints.Encoding
	if encoding == "" {
		detected, err := p.validator.DetectEncoding(data)
		if err != nil {
			return nil, nil, err
		}
		encoding = detected
	}

	sep := firstRune(hints.Delimiter)
	if sep == 0 {
		sample := decodePermissive(prefixBytes(data, encodingProbeLimit), encoding)
		sep = p.validator.DetectSeparator(sample)
	}

	meta.Encoding = encoding
	meta.Delimiter = string(sep)

	strategies := []fallback.Strategy[parseResult]{
		{
			Name: "strict",
			Run: func() (parseResult, error) {
				text, err := p.validator.DecodeText(data, encoding)
				if err != nil {
					return parseResult{}, err
				}
				return parseStrict(text, sep)
			},
		},
		{
			Name: "skip-malformed",
			Run: func() (parseResult, error) {
				text, err := p.validator.DecodeText(data, encoding)
				if err != nil {
					return parseResult{}, err
				}
				return parseSkippingMalformed(text, sep, name)
			},
		},
		{
			Name: "permissive",
			Run: func() (parseResult, error) {
				text := decodePermissive(data, encoding)
				permSep := p.validator.DetectSeparator(text)
				res, err := parsePermissive(text, permSep, name)
				if err == nil && permSep != sep {
					meta.Delimiter = string(permSep)
				}
				return res, err
			},
		},
	}

	result, outcome, err := fallback.Run(strategies)
	if err != nil {
		return nil, nil, fmt.Errorf("delimited parse of %s: %w", name, err)
	}

	warnings := result.warnings
	for _, attempt := range outcome.Attempts {
		warnings = append(warnings, fmt.Sprintf("%s: parse stage failed (%s)", name, attempt))
	}
	return result.table, warnings, nil
}

func parseStrict(text string, sep rune) (parseResult, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sep
	records, err := reader.ReadAll()
	if err != nil {
		return parseResult{}, err
	}
	if len(records) == 0 {
		return parseResult{}, fmt.Errorf("no rows")
	}
	return parseResult{table: tableFromRecords(records[0], records[1:])}, nil
}

func parseSkippingMalformed(text string, sep rune, name string) (parseResult, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sep

	header, err := reader.Read()
	if err != nil {
		return parseResult{}, fmt.Errorf("header: %w", err)
	}
	reader.FieldsPerRecord = len(header)

	var rows [][]string
	var warnings []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := lineOf(err)
			warnings = append(warnings, fmt.Sprintf("%s: skipped malformed line %s: %v", name, line, err))
			continue
		}
		rows = append(rows, record)
	}

	return parseResult{table: tableFromRecords(header, rows), warnings: warnings}, nil
}

func parsePermissive(text string, sep rune, name string) (parseResult, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	var rows [][]string
	var warnings []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: skipped unrecoverable line %s: %v", name, lineOf(err), err))
			continue
		}
		if header == nil {
			header = record
			continue
		}
		// Ragged rows are padded or truncated to header width.
		if len(record) != len(header) {
			warnings = append(warnings, fmt.Sprintf("%s: row with %d fields adjusted to %d columns", name, len(record), len(header)))
			record = fitWidth(record, len(header))
		}
		rows = append(rows, record)
	}

	if header == nil {
		return parseResult{}, fmt.Errorf("no parseable header line")
	}
	return parseResult{table: tableFromRecords(header, rows), warnings: warnings}, nil
}

// tableFromRecords builds an untyped string table; empty cells become nulls.
func tableFromRecords(header []string, rows [][]string) *models.Table {
	cols := make([]*models.Column, len(header))
	for j := range header {
		values := make([]string, len(rows))
		valid := make([]bool, len(rows))
		for i, row := range rows {
			if j < len(row) && row[j] != "" {
				values[i] = row[j]
				valid[i] = true
			}
		}
		cols[j] = models.NewStringColumn(header[j], values, valid)
	}
	return models.NewTable(cols...)
}

func fitWidth(record []string, width int) []string {
	if len(record) > width {
		return record[:width]
	}
	for len(record) < width {
		record = append(record, "")
	}
	return record
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func prefixBytes(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}

func lineOf(err error) string {
	if pe, ok := err.(*csv.ParseError); ok {
		return fmt.Sprintf("%d", pe.Line)
	}
	return "?"
}
