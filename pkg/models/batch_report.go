package models

import (
	"bytes"
	"encoding/json"
)

// EntryResult is the tagged outcome for one batch or archive member.
type EntryResult struct {
	Status   string        `json:"status"` // "success" or "failure"
	Table    *Table        `json:"table,omitempty"`
	Metadata *FileMetadata `json:"metadata,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// BatchReport aggregates per-entry outcomes for a multi-file or archive call.
// Entries preserve the original input order regardless of completion order so
// two runs over the same input serialize identically.
type BatchReport struct {
	Total     int                    `json:"total"`
	Processed int                    `json:"processed"`
	Failed    int                    `json:"failed"`
	Entries   map[string]EntryResult `json:"-"`
	Errors    []string               `json:"errors"`

	order []string
}

// NewBatchReport returns an empty report.
func NewBatchReport() *BatchReport {
	return &BatchReport{
		Entries: make(map[string]EntryResult),
		Errors:  []string{},
	}
}

// AddSuccess records a processed entry.
func (r *BatchReport) AddSuccess(path string, table *Table, meta *FileMetadata) {
	r.addEntry(path, EntryResult{Status: "success", Table: table, Metadata: meta})
	r.Processed++
	r.Total++
}

// AddFailure records a failed entry without aborting the batch.
func (r *BatchReport) AddFailure(path string, message string) {
	r.addEntry(path, EntryResult{Status: "failure", Error: message})
	r.Failed++
	r.Total++
}

// AddError records a batch-level (not per-entry) failure.
func (r *BatchReport) AddError(message string) {
	r.Errors = append(r.Errors, message)
}

func (r *BatchReport) addEntry(path string, res EntryResult) {
	if _, exists := r.Entries[path]; !exists {
		r.order = append(r.order, path)
	}
	r.Entries[path] = res
}

// EntryOrder returns entry paths in original input order.
func (r *BatchReport) EntryOrder() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// MarshalJSON emits entries as an object in input order rather than Go's
// sorted map order.
func (r *BatchReport) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	head, err := json.Marshal(struct {
		Total     int      `json:"total"`
		Processed int      `json:"processed"`
		Failed    int      `json:"failed"`
		Errors    []string `json:"errors"`
	}{r.Total, r.Processed, r.Failed, r.Errors})
	if err != nil {
		return nil, err
	}
	buf.Write(head[1 : len(head)-1])
	buf.WriteString(`,"entries":{`)
	for i, path := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(path)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Entries[path])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
