package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DType is the closed set of semantic column types.
type DType string

const (
	DTypeString      DType = "string"
	DTypeCategorical DType = "categorical"
	DTypeBool        DType = "bool"
	DTypeTimestamp   DType = "timestamp"
	DTypeInt64       DType = "int64"
	DTypeFloat64     DType = "float64"
)

// Width is the storage width chosen by inference for numeric columns: the
// narrowest rung of the 8/16/32/64-bit ladder covering the observed range,
// unsigned when the minimum is non-negative. Floats store at reduced
// precision. The semantic type stays Int64/Float64; Width is an optimization
// detail consumers may use for compact encodings.
type Width string

const (
	WidthNone    Width = ""
	WidthInt8    Width = "int8"
	WidthInt16   Width = "int16"
	WidthInt32   Width = "int32"
	WidthInt64   Width = "int64"
	WidthUint8   Width = "uint8"
	WidthUint16  Width = "uint16"
	WidthUint32  Width = "uint32"
	WidthUint64  Width = "uint64"
	WidthFloat32 Width = "float32"
)

// Column is a single named column: one semantic type, a columnar value
// buffer and a parallel validity slice.
type Column struct {
	Name  string
	Type  DType
	Width Width
	Valid []bool

	strings []string
	ints    []int64
	floats  []float64
	bools   []bool
	times   []time.Time
}

// NewStringColumn builds a textual column. A nil valid slice marks every
// value as present.
func NewStringColumn(name string, values []string, valid []bool) *Column {
	if valid == nil {
		valid = make([]bool, len(values))
		for i := range valid {
			valid[i] = true
		}
	}
	return &Column{Name: name, Type: DTypeString, Valid: valid, strings: values}
}

// NewIntColumn builds an Int64 column with the given storage width.
func NewIntColumn(name string, width Width, values []int64, valid []bool) *Column {
	return &Column{Name: name, Type: DTypeInt64, Width: width, Valid: valid, ints: values}
}

// NewFloatColumn builds a Float64 column with the given storage width.
func NewFloatColumn(name string, width Width, values []float64, valid []bool) *Column {
	return &Column{Name: name, Type: DTypeFloat64, Width: width, Valid: valid, floats: values}
}

// NewBoolColumn builds a boolean column.
func NewBoolColumn(name string, values []bool, valid []bool) *Column {
	return &Column{Name: name, Type: DTypeBool, Valid: valid, bools: values}
}

// NewTimestampColumn builds a timestamp column.
func NewTimestampColumn(name string, values []time.Time, valid []bool) *Column {
	return &Column{Name: name, Type: DTypeTimestamp, Valid: valid, times: values}
}

// NewCategoricalColumn builds a categorical column backed by strings.
func NewCategoricalColumn(name string, values []string, valid []bool) *Column {
	return &Column{Name: name, Type: DTypeCategorical, Valid: valid, strings: values}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int { return len(c.Valid) }

// IsNull reports whether row i holds no value.
func (c *Column) IsNull(i int) bool { return !c.Valid[i] }

// NonNullCount returns the number of rows holding a value.
func (c *Column) NonNullCount() int {
	n := 0
	for _, v := range c.Valid {
		if v {
			n++
		}
	}
	return n
}

// Value returns the Go value at row i and whether it is present.
func (c *Column) Value(i int) (any, bool) {
	if !c.Valid[i] {
		return nil, false
	}
	switch c.Type {
	case DTypeString, DTypeCategorical:
		return c.strings[i], true
	case DTypeBool:
		return c.bools[i], true
	case DTypeTimestamp:
		return c.times[i], true
	case DTypeInt64:
		return c.ints[i], true
	case DTypeFloat64:
		return c.floats[i], true
	}
	return nil, false
}

// Render returns the string rendering of row i, or "" for null.
func (c *Column) Render(i int) string {
	v, ok := c.Value(i)
	if !ok {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64)
	case time.Time:
		return tv.Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v)
}

// AppendNull appends a null row to the column.
func (c *Column) AppendNull() {
	c.Valid = append(c.Valid, false)
	switch c.Type {
	case DTypeString, DTypeCategorical:
		c.strings = append(c.strings, "")
	case DTypeBool:
		c.bools = append(c.bools, false)
	case DTypeTimestamp:
		c.times = append(c.times, time.Time{})
	case DTypeInt64:
		c.ints = append(c.ints, 0)
	case DTypeFloat64:
		c.floats = append(c.floats, 0)
	}
}

// AppendFrom appends row i of src to c. The columns must share a semantic
// type; callers needing a type bridge go through AppendRendered.
func (c *Column) AppendFrom(src *Column, i int) {
	if src.IsNull(i) {
		c.AppendNull()
		return
	}
	c.Valid = append(c.Valid, true)
	switch c.Type {
	case DTypeString, DTypeCategorical:
		c.strings = append(c.strings, src.strings[i])
	case DTypeBool:
		c.bools = append(c.bools, src.bools[i])
	case DTypeTimestamp:
		c.times = append(c.times, src.times[i])
	case DTypeInt64:
		c.ints = append(c.ints, src.ints[i])
	case DTypeFloat64:
		c.floats = append(c.floats, src.floats[i])
	}
}

// AppendRendered appends row i of src as text. Used when inputs being
// combined disagree on a column's type and the result falls back to string.
func (c *Column) AppendRendered(src *Column, i int) {
	if src.IsNull(i) {
		c.AppendNull()
		return
	}
	c.Valid = append(c.Valid, true)
	c.strings = append(c.strings, src.Render(i))
}

// filter keeps only rows where keep[i] is true.
func (c *Column) filter(keep []bool) {
	w := 0
	for i := range c.Valid {
		if !keep[i] {
			continue
		}
		c.Valid[w] = c.Valid[i]
		switch c.Type {
		case DTypeString, DTypeCategorical:
			c.strings[w] = c.strings[i]
		case DTypeBool:
			c.bools[w] = c.bools[i]
		case DTypeTimestamp:
			c.times[w] = c.times[i]
		case DTypeInt64:
			c.ints[w] = c.ints[i]
		case DTypeFloat64:
			c.floats[w] = c.floats[i]
		}
		w++
	}
	c.Valid = c.Valid[:w]
	c.truncate(w)
}

func (c *Column) truncate(n int) {
	if c.strings != nil {
		c.strings = c.strings[:n]
	}
	if c.ints != nil {
		c.ints = c.ints[:n]
	}
	if c.floats != nil {
		c.floats = c.floats[:n]
	}
	if c.bools != nil {
		c.bools = c.bools[:n]
	}
	if c.times != nil {
		c.times = c.times[:n]
	}
}

// Strings returns the backing string slice for textual columns, nil otherwise.
func (c *Column) Strings() []string {
	if c.Type == DTypeString || c.Type == DTypeCategorical {
		return c.strings
	}
	return nil
}

// Ints returns the backing int64 slice for Int64 columns, nil otherwise.
func (c *Column) Ints() []int64 {
	if c.Type == DTypeInt64 {
		return c.ints
	}
	return nil
}

// Floats returns the backing float64 slice for Float64 columns, nil otherwise.
func (c *Column) Floats() []float64 {
	if c.Type == DTypeFloat64 {
		return c.floats
	}
	return nil
}

// Bools returns the backing bool slice for boolean columns, nil otherwise.
func (c *Column) Bools() []bool {
	if c.Type == DTypeBool {
		return c.bools
	}
	return nil
}

// Times returns the backing time slice for timestamp columns, nil otherwise.
func (c *Column) Times() []time.Time {
	if c.Type == DTypeTimestamp {
		return c.times
	}
	return nil
}

// Table is the canonical typed output of ingestion: an ordered sequence of
// named columns, names unique, all sharing one row count.
type Table struct {
	Columns []*Column
}

// NewTable builds a table from columns. All columns must share a length.
func NewTable(columns ...*Column) *Table {
	return &Table{Columns: columns}
}

// NumRows returns the shared row count.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Columns) }

// ColumnNames returns names in column order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Project returns a new table holding only the named columns, in the given
// order. Unknown names are skipped.
func (t *Table) Project(names []string) *Table {
	out := &Table{}
	for _, name := range names {
		if c := t.Column(name); c != nil {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// DropNullColumns removes columns with no non-null values and returns the
// names removed, in column order.
func (t *Table) DropNullColumns() []string {
	var dropped []string
	kept := t.Columns[:0]
	for _, c := range t.Columns {
		if c.Len() > 0 && c.NonNullCount() == 0 {
			dropped = append(dropped, c.Name)
			continue
		}
		kept = append(kept, c)
	}
	t.Columns = kept
	return dropped
}

// DropNullRows removes rows where every column is null and returns how many
// were removed.
func (t *Table) DropNullRows() int {
	n := t.NumRows()
	if n == 0 || len(t.Columns) == 0 {
		return 0
	}
	keep := make([]bool, n)
	removed := 0
	for i := 0; i < n; i++ {
		for _, c := range t.Columns {
			if !c.IsNull(i) {
				keep[i] = true
				break
			}
		}
		if !keep[i] {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	for _, c := range t.Columns {
		c.filter(keep)
	}
	return removed
}

// MarshalJSON renders the table as column descriptors plus row-major cells.
func (t *Table) MarshalJSON() ([]byte, error) {
	type colDesc struct {
		Name  string `json:"name"`
		Type  DType  `json:"type"`
		Width Width  `json:"width,omitempty"`
	}
	cols := make([]colDesc, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = colDesc{Name: c.Name, Type: c.Type, Width: c.Width}
	}
	rows := make([][]any, t.NumRows())
	for i := range rows {
		row := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			if v, ok := c.Value(i); ok {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return json.Marshal(struct {
		Columns []colDesc `json:"columns"`
		RowCnt  int       `json:"row_count"`
		Rows    [][]any   `json:"rows"`
	}{Columns: cols, RowCnt: t.NumRows(), Rows: rows})
}

// RenameDuplicates returns the ordered names with duplicates suffixed _1, _2,
// … in order of appearance. The first occurrence keeps its name. Pure.
func RenameDuplicates(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		n, dup := seen[name]
		if !dup {
			seen[name] = 0
			out[i] = name
			continue
		}
		for {
			n++
			candidate := fmt.Sprintf("%s_%d", name, n)
			if _, taken := seen[candidate]; !taken {
				seen[name] = n
				seen[candidate] = 0
				out[i] = candidate
				break
			}
		}
	}
	return out
}

// CleanColumnName trims surrounding whitespace and replaces an empty result
// with a positional placeholder.
func CleanColumnName(name string, position int) string {
	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return fmt.Sprintf("column_%d", position)
	}
	return cleaned
}
