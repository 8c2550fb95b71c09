package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameDuplicates(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"no duplicates", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"simple duplicate", []string{"id", "id"}, []string{"id", "id_1"}},
		{"triple duplicate", []string{"id", "id", "id"}, []string{"id", "id_1", "id_2"}},
		{"suffix collision", []string{"a", "a_1", "a"}, []string{"a", "a_1", "a_2"}},
		{"empty input", []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenameDuplicates(tt.input))
		})
	}
}

func TestCleanColumnName(t *testing.T) {
	assert.Equal(t, "amount", CleanColumnName("  amount ", 3))
	assert.Equal(t, "column_0", CleanColumnName("", 0))
	assert.Equal(t, "column_7", CleanColumnName("   ", 7))
}

func TestColumnNullHandling(t *testing.T) {
	col := NewStringColumn("c", []string{"x", "", "z"}, []bool{true, false, true})

	assert.Equal(t, 3, col.Len())
	assert.Equal(t, 2, col.NonNullCount())
	assert.True(t, col.IsNull(1))

	v, ok := col.Value(0)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = col.Value(1)
	assert.False(t, ok)
	assert.Equal(t, "", col.Render(1))
}

func TestColumnRender(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	intCol := NewIntColumn("i", WidthUint8, []int64{42}, []bool{true})
	floatCol := NewFloatColumn("f", WidthFloat32, []float64{1.5}, []bool{true})
	boolCol := NewBoolColumn("b", []bool{true}, []bool{true})
	timeCol := NewTimestampColumn("t", []time.Time{ts}, []bool{true})

	assert.Equal(t, "42", intCol.Render(0))
	assert.Equal(t, "1.5", floatCol.Render(0))
	assert.Equal(t, "true", boolCol.Render(0))
	assert.Equal(t, "2024-03-01T12:00:00Z", timeCol.Render(0))
}

func TestTableDropNullColumns(t *testing.T) {
	table := NewTable(
		NewStringColumn("keep", []string{"a", "b"}, []bool{true, true}),
		NewStringColumn("empty", []string{"", ""}, []bool{false, false}),
	)

	dropped := table.DropNullColumns()

	assert.Equal(t, []string{"empty"}, dropped)
	assert.Equal(t, []string{"keep"}, table.ColumnNames())
}

func TestTableDropNullRows(t *testing.T) {
	table := NewTable(
		NewStringColumn("a", []string{"1", "", "3"}, []bool{true, false, true}),
		NewStringColumn("b", []string{"x", "", "z"}, []bool{true, false, true}),
	)

	removed := table.DropNullRows()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, table.NumRows())
	assert.Equal(t, "3", table.Column("a").Render(1))
}

func TestTableDropNullRowsKeepsPartialRows(t *testing.T) {
	table := NewTable(
		NewStringColumn("a", []string{"1", ""}, []bool{true, false}),
		NewStringColumn("b", []string{"", "y"}, []bool{false, true}),
	)

	assert.Equal(t, 0, table.DropNullRows())
	assert.Equal(t, 2, table.NumRows())
}

func TestTableProject(t *testing.T) {
	table := NewTable(
		NewStringColumn("a", []string{"1"}, nil),
		NewStringColumn("b", []string{"2"}, nil),
		NewStringColumn("c", []string{"3"}, nil),
	)

	projected := table.Project([]string{"c", "a", "missing"})

	assert.Equal(t, []string{"c", "a"}, projected.ColumnNames())
}

func TestTableMarshalJSON(t *testing.T) {
	table := NewTable(
		NewIntColumn("id", WidthUint8, []int64{1, 2}, []bool{true, true}),
		NewStringColumn("name", []string{"a", ""}, []bool{true, false}),
	)

	data, err := json.Marshal(table)
	require.NoError(t, err)

	var decoded struct {
		Columns []struct {
			Name  string `json:"name"`
			Type  string `json:"type"`
			Width string `json:"width"`
		} `json:"columns"`
		RowCount int     `json:"row_count"`
		Rows     [][]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Columns, 2)
	assert.Equal(t, "int64", decoded.Columns[0].Type)
	assert.Equal(t, "uint8", decoded.Columns[0].Width)
	assert.Equal(t, 2, decoded.RowCount)
	assert.Nil(t, decoded.Rows[1][1])
}

func TestColumnAppendFrom(t *testing.T) {
	src := NewIntColumn("n", WidthUint8, []int64{7, 8}, []bool{true, false})
	dst := &Column{Name: "n", Type: DTypeInt64, Width: WidthUint8}

	dst.AppendFrom(src, 0)
	dst.AppendFrom(src, 1)

	assert.Equal(t, 2, dst.Len())
	assert.Equal(t, []int64{7, 0}, dst.Ints())
	assert.True(t, dst.IsNull(1))
}

func TestColumnAppendRendered(t *testing.T) {
	src := NewIntColumn("n", WidthUint8, []int64{42}, []bool{true})
	dst := &Column{Name: "n", Type: DTypeString}

	dst.AppendRendered(src, 0)

	assert.Equal(t, []string{"42"}, dst.Strings())
}
