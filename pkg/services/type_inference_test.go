package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakiln/ingest-engine/pkg/models"
)

func newTestInferencer() TypeInferenceService {
	return NewTypeInferenceService(testIngestConfig())
}

func stringCol(name string, values ...string) *models.Column {
	valid := make([]bool, len(values))
	for i, v := range values {
		valid[i] = v != ""
	}
	return models.NewStringColumn(name, values, valid)
}

func TestInferInteger(t *testing.T) {
	s := newTestInferencer()

	col, entry := s.InferAndConvert(stringCol("n", "1", "2", "3"))

	assert.Equal(t, models.DTypeInt64, col.Type)
	assert.Equal(t, models.WidthUint8, col.Width)
	assert.Equal(t, []int64{1, 2, 3}, col.Ints())
	require.NotNil(t, entry)
	assert.Equal(t, models.DTypeString, entry.FromType)
	assert.Equal(t, models.DTypeInt64, entry.ToType)
	assert.Equal(t, []string{"1", "2", "3"}, entry.SampleValues)
}

func TestInferIntegerWidths(t *testing.T) {
	s := newTestInferencer()

	tests := []struct {
		name   string
		values []string
		want   models.Width
	}{
		{"small unsigned", []string{"0", "255"}, models.WidthUint8},
		{"medium unsigned", []string{"256", "65535"}, models.WidthUint16},
		{"large unsigned", []string{"70000"}, models.WidthUint32},
		{"huge unsigned", []string{"5000000000"}, models.WidthUint64},
		{"small signed", []string{"-5", "100"}, models.WidthInt8},
		{"medium signed", []string{"-1000", "1000"}, models.WidthInt16},
		{"large signed", []string{"-100000"}, models.WidthInt32},
		{"huge signed", []string{"-5000000000"}, models.WidthInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, _ := s.InferAndConvert(stringCol("n", tt.values...))
			require.Equal(t, models.DTypeInt64, col.Type)
			assert.Equal(t, tt.want, col.Width)
		})
	}
}

func TestInferFloat(t *testing.T) {
	s := newTestInferencer()

	col, _ := s.InferAndConvert(stringCol("f", "1.5", "2.25", "-0.5"))

	assert.Equal(t, models.DTypeFloat64, col.Type)
	assert.Equal(t, models.WidthFloat32, col.Width)
	assert.Equal(t, []float64{1.5, 2.25, -0.5}, col.Floats())
}

func TestInferNumericStripsFormatting(t *testing.T) {
	s := newTestInferencer()

	col, _ := s.InferAndConvert(stringCol("amount", "$1,200", "$3,400"))

	require.Equal(t, models.DTypeInt64, col.Type)
	assert.Equal(t, []int64{1200, 3400}, col.Ints())
	assert.Equal(t, models.WidthUint16, col.Width)
}

func TestInferNumericThreshold(t *testing.T) {
	s := newTestInferencer()

	// 4 of 5 values parse: exactly at the 0.8 threshold, converts.
	col, _ := s.InferAndConvert(stringCol("n", "1", "2", "3", "4", "x"))
	assert.Equal(t, models.DTypeInt64, col.Type)
	assert.True(t, col.IsNull(4))

	// 3 of 5 parse: below threshold, stays textual.
	col, entry := s.InferAndConvert(stringCol("n", "1", "2", "3", "x", "y"))
	assert.Equal(t, models.DTypeString, col.Type)
	assert.Nil(t, entry)
}

func TestInferTimestamp(t *testing.T) {
	s := newTestInferencer()

	col, entry := s.InferAndConvert(stringCol("when", "2021-01-01", "2021-06-15", "2022-12-31"))

	require.Equal(t, models.DTypeTimestamp, col.Type)
	require.NotNil(t, entry)
	assert.Equal(t, models.DTypeTimestamp, entry.ToType)
	assert.Equal(t, time.January, col.Times()[0].Month())
}

func TestInferTimestampMixedFormats(t *testing.T) {
	s := newTestInferencer()

	col, _ := s.InferAndConvert(stringCol("when", "2021-01-01", "Jan 2, 2021", "03/04/2021 10:00"))

	assert.Equal(t, models.DTypeTimestamp, col.Type)
}

func TestInferTimestampBelowThreshold(t *testing.T) {
	s := newTestInferencer()

	// 2 of 3 parse: 0.67 is below the 0.7 threshold.
	col, _ := s.InferAndConvert(stringCol("when", "2021-01-01", "2021-06-15", "not a date"))

	assert.NotEqual(t, models.DTypeTimestamp, col.Type)
}

func TestInferBoolean(t *testing.T) {
	s := newTestInferencer()

	col, _ := s.InferAndConvert(stringCol("flag", "yes", "no", "YES", " no "))

	require.Equal(t, models.DTypeBool, col.Type)
	assert.Equal(t, []bool{true, false, true, false}, col.Bools())
}

func TestInferBooleanNumericSymbolsGoNumericFirst(t *testing.T) {
	s := newTestInferencer()

	// "1"/"0" belong to both the numeric and boolean rules; numeric runs
	// first and wins.
	col, _ := s.InferAndConvert(stringCol("flag", "1", "0", "1"))

	assert.Equal(t, models.DTypeInt64, col.Type)
}

func TestInferBooleanRejectsForeignSymbols(t *testing.T) {
	s := newTestInferencer()

	col, _ := s.InferAndConvert(stringCol("flag", "yes", "no", "maybe", "yes", "no", "yes"))

	assert.NotEqual(t, models.DTypeBool, col.Type)
}

func TestInferCategorical(t *testing.T) {
	s := newTestInferencer()

	col, entry := s.InferAndConvert(stringCol("color", "red", "blue", "red", "red", "blue", "red"))

	require.Equal(t, models.DTypeCategorical, col.Type)
	require.NotNil(t, entry)
	assert.Equal(t, models.DTypeCategorical, entry.ToType)
}

func TestInferHighCardinalityStaysString(t *testing.T) {
	s := newTestInferencer()

	col, entry := s.InferAndConvert(stringCol("id", "alpha", "bravo", "charlie", "delta"))

	assert.Equal(t, models.DTypeString, col.Type)
	assert.Nil(t, entry)
}

func TestInferIdempotent(t *testing.T) {
	s := newTestInferencer()

	first, entry := s.InferAndConvert(stringCol("n", "1", "2", "3"))
	require.NotNil(t, entry)

	second, entry := s.InferAndConvert(first)
	assert.Same(t, first, second)
	assert.Nil(t, entry)
}

func TestInferSkipsNulls(t *testing.T) {
	s := newTestInferencer()

	col, _ := s.InferAndConvert(stringCol("n", "10", "", "30"))

	require.Equal(t, models.DTypeInt64, col.Type)
	assert.True(t, col.IsNull(1))
	assert.Equal(t, 2, col.NonNullCount())
}

func TestInferAllNullPassesThrough(t *testing.T) {
	s := newTestInferencer()

	src := models.NewStringColumn("empty", []string{"", ""}, []bool{false, false})
	col, entry := s.InferAndConvert(src)

	assert.Same(t, src, col)
	assert.Nil(t, entry)
}

func TestInferTable(t *testing.T) {
	s := newTestInferencer()

	table := models.NewTable(
		stringCol("n", "1", "2"),
		stringCol("label", "aa1", "bb2"),
	)

	log := s.InferTable(table)

	require.Len(t, log, 1)
	assert.Equal(t, "n", log[0].Column)
	assert.Equal(t, models.DTypeInt64, table.Column("n").Type)
	assert.Equal(t, models.DTypeString, table.Column("label").Type)
}
