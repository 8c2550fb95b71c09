package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datakiln/ingest-engine/pkg/models"
)

// jsonRow is one record with keys in declaration order.
type jsonRow struct {
	keys  []string
	cells map[string]jsonCell
}

type jsonCell struct {
	text string
	null bool
}

// parseJSON turns a JSON document into rows: a root array contributes one
// row per element; a root object contributes the first array-valued field in
// declaration order, or becomes a single one-row table. Malformed JSON is
// fatal for the entry.
func (p *formatProcessor) parseJSON(data []byte, name string) (*models.Table, []string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%s: empty JSON document", name)
	}

	var warnings []string
	switch data[0] {
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(data, &elements); err != nil {
			return nil, nil, fmt.Errorf("%s: malformed JSON array: %w", name, err)
		}
		rows, err := rawsToRows(elements)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return rowsToTable(rows), warnings, nil

	case '{':
		keys, values, err := decodeOrderedObject(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: malformed JSON object: %w", name, err)
		}
		// First array-valued field in declaration order wins.
		for i, key := range keys {
			raw := bytes.TrimSpace(values[i])
			if len(raw) > 0 && raw[0] == '[' {
				var elements []json.RawMessage
				if err := json.Unmarshal(raw, &elements); err != nil {
					return nil, nil, fmt.Errorf("%s: malformed array field %q: %w", name, key, err)
				}
				rows, err := rawsToRows(elements)
				if err != nil {
					return nil, nil, fmt.Errorf("%s: field %q: %w", name, key, err)
				}
				return rowsToTable(rows), warnings, nil
			}
		}
		// No array field: the whole object is a single-row table.
		row, err := rawToRow(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return rowsToTable([]jsonRow{row}), warnings, nil
	}

	return nil, nil, fmt.Errorf("%s: JSON root must be an array or object", name)
}

// parseJSONLines parses one JSON document per line. Unparseable lines are
// skipped with a warning; the call fails only when zero lines parsed.
func (p *formatProcessor) parseJSONLines(data []byte, name string) (*models.Table, []string, error) {
	var rows []jsonRow
	var warnings []string

	lineNo := 0
	for line := range strings.SplitSeq(string(data), "\n") {
		lineNo++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		row, err := rawToRow([]byte(trimmed))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: skipped malformed line %d: %v", name, lineNo, err))
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%s: no JSON lines parsed successfully", name)
	}
	return rowsToTable(rows), warnings, nil
}

func rawsToRows(elements []json.RawMessage) ([]jsonRow, error) {
	rows := make([]jsonRow, 0, len(elements))
	for i, el := range elements {
		row, err := rawToRow(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rawToRow converts one JSON value to a row. Objects map field-by-field;
// scalars and arrays become a single "value" cell.
func rawToRow(raw []byte) (jsonRow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return jsonRow{}, fmt.Errorf("empty value")
	}

	if trimmed[0] == '{' {
		keys, values, err := decodeOrderedObject(trimmed)
		if err != nil {
			return jsonRow{}, err
		}
		row := jsonRow{keys: keys, cells: make(map[string]jsonCell, len(keys))}
		for i, key := range keys {
			row.cells[key] = rawToCell(values[i])
		}
		return row, nil
	}

	if !json.Valid(trimmed) {
		return jsonRow{}, fmt.Errorf("invalid JSON value")
	}
	return jsonRow{keys: []string{"value"}, cells: map[string]jsonCell{"value": rawToCell(trimmed)}}, nil
}

// rawToCell renders a JSON value as cell text: strings unquoted, null as a
// null cell, everything else (numbers, bools, nested structures) as its
// literal JSON text so inference sees the original rendering.
func rawToCell(raw json.RawMessage) jsonCell {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return jsonCell{null: true}
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			if s == "" {
				return jsonCell{null: true}
			}
			return jsonCell{text: s}
		}
	}
	return jsonCell{text: string(trimmed)}
}

// decodeOrderedObject returns an object's keys in declaration order with
// their raw values. encoding/json maps lose order, so the token stream is
// walked directly.
func decodeOrderedObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("not a JSON object")
	}

	var keys []string
	var values []json.RawMessage
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("non-string object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

// rowsToTable assembles rows into a string table. Column order is first-seen
// key order across rows; cells absent from a row are null.
func rowsToTable(rows []jsonRow) *models.Table {
	var order []string
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, key := range row.keys {
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
			}
		}
	}

	cols := make([]*models.Column, len(order))
	for j, key := range order {
		values := make([]string, len(rows))
		valid := make([]bool, len(rows))
		for i, row := range rows {
			if cell, ok := row.cells[key]; ok && !cell.null {
				values[i] = cell.text
				valid[i] = true
			}
		}
		cols[j] = models.NewStringColumn(key, values, valid)
	}
	return models.NewTable(cols...)
}
