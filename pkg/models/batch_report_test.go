package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchReportCounts(t *testing.T) {
	report := NewBatchReport()
	report.AddSuccess("a.csv", nil, &FileMetadata{Name: "a.csv"})
	report.AddFailure("b.csv", "parse failed")
	report.AddSuccess("c.csv", nil, &FileMetadata{Name: "c.csv"})

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Errors)
}

func TestBatchReportEntryOrder(t *testing.T) {
	report := NewBatchReport()
	report.AddFailure("z.csv", "bad")
	report.AddSuccess("a.csv", nil, nil)
	report.AddSuccess("m.csv", nil, nil)

	assert.Equal(t, []string{"z.csv", "a.csv", "m.csv"}, report.EntryOrder())
}

func TestBatchReportMarshalPreservesInputOrder(t *testing.T) {
	report := NewBatchReport()
	report.AddSuccess("zebra.csv", nil, nil)
	report.AddFailure("apple.csv", "broken")

	data, err := json.Marshal(report)
	require.NoError(t, err)

	// "zebra.csv" was added first and must serialize first, despite sorting
	// after "apple.csv" lexically.
	text := string(data)
	assert.Less(t, strings.Index(text, "zebra.csv"), strings.Index(text, "apple.csv"))

	var decoded struct {
		Total   int                    `json:"total"`
		Entries map[string]EntryResult `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded.Total)
	assert.Equal(t, "failure", decoded.Entries["apple.csv"].Status)
	assert.Equal(t, "broken", decoded.Entries["apple.csv"].Error)
}

func TestBatchReportMarshalDeterministic(t *testing.T) {
	report := NewBatchReport()
	report.AddSuccess("b.csv", nil, nil)
	report.AddSuccess("a.csv", nil, nil)
	report.AddError("container warning")

	first, err := json.Marshal(report)
	require.NoError(t, err)
	second, err := json.Marshal(report)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBatchReportBatchLevelErrors(t *testing.T) {
	report := NewBatchReport()
	report.AddError("cannot open archive broken.zip: zip: not a valid zip file")

	assert.Equal(t, 0, report.Total)
	assert.Len(t, report.Errors, 1)
}
