package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	pqfile "github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/datakiln/ingest-engine/pkg/models"
)

// parseParquet reads a parquet file through the arrow reader. The format is
// assumed well-formed by construction: any failure is fatal for the entry,
// with no fallback.
func (p *formatProcessor) parseParquet(ctx context.Context, data []byte, name string) (*models.Table, []string, error) {
	reader, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet %s: %w", name, err)
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("arrow reader for %s: %w", name, err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read parquet table %s: %w", name, err)
	}
	defer tbl.Release()

	out := &models.Table{}
	schema := tbl.Schema()
	for i := 0; i < int(tbl.NumCols()); i++ {
		col, err := arrowColumn(schema.Field(i).Name, tbl.Column(i))
		if err != nil {
			return nil, nil, fmt.Errorf("column %q of %s: %w", schema.Field(i).Name, name, err)
		}
		out.Columns = append(out.Columns, col)
	}
	return out, nil, nil
}

// arrowColumn converts one arrow column (possibly chunked) into the closed
// semantic type set. Unrecognized arrow types fall back to their string
// rendering and go through ordinary inference.
func arrowColumn(name string, col *arrow.Column) (*models.Column, error) {
	n := int(col.Len())

	switch col.DataType().ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		values := make([]int64, 0, n)
		valid := make([]bool, 0, n)
		for _, chunk := range col.Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				if chunk.IsNull(i) {
					values = append(values, 0)
					valid = append(valid, false)
					continue
				}
				iv, err := intAt(chunk, i)
				if err != nil {
					return nil, err
				}
				values = append(values, iv)
				valid = append(valid, true)
			}
		}
		return models.NewIntColumn(name, models.WidthInt64, values, valid), nil

	case arrow.FLOAT32, arrow.FLOAT64:
		values := make([]float64, 0, n)
		valid := make([]bool, 0, n)
		for _, chunk := range col.Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				if chunk.IsNull(i) {
					values = append(values, 0)
					valid = append(valid, false)
					continue
				}
				switch arr := chunk.(type) {
				case *array.Float32:
					values = append(values, float64(arr.Value(i)))
				case *array.Float64:
					values = append(values, arr.Value(i))
				}
				valid = append(valid, true)
			}
		}
		return models.NewFloatColumn(name, models.WidthNone, values, valid), nil

	case arrow.BOOL:
		values := make([]bool, 0, n)
		valid := make([]bool, 0, n)
		for _, chunk := range col.Data().Chunks() {
			arr := chunk.(*array.Boolean)
			for i := 0; i < arr.Len(); i++ {
				if arr.IsNull(i) {
					values = append(values, false)
					valid = append(valid, false)
					continue
				}
				values = append(values, arr.Value(i))
				valid = append(valid, true)
			}
		}
		return models.NewBoolColumn(name, values, valid), nil

	case arrow.TIMESTAMP:
		unit := col.DataType().(*arrow.TimestampType).Unit
		values := make([]time.Time, 0, n)
		valid := make([]bool, 0, n)
		for _, chunk := range col.Data().Chunks() {
			arr := chunk.(*array.Timestamp)
			for i := 0; i < arr.Len(); i++ {
				if arr.IsNull(i) {
					values = append(values, time.Time{})
					valid = append(valid, false)
					continue
				}
				values = append(values, arr.Value(i).ToTime(unit))
				valid = append(valid, true)
			}
		}
		return models.NewTimestampColumn(name, values, valid), nil
	}

	// Strings and everything else: render per value.
	values := make([]string, 0, n)
	valid := make([]bool, 0, n)
	for _, chunk := range col.Data().Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				values = append(values, "")
				valid = append(valid, false)
				continue
			}
			values = append(values, chunk.ValueStr(i))
			valid = append(valid, true)
		}
	}
	return models.NewStringColumn(name, values, valid), nil
}

func intAt(chunk arrow.Array, i int) (int64, error) {
	switch arr := chunk.(type) {
	case *array.Int8:
		return int64(arr.Value(i)), nil
	case *array.Int16:
		return int64(arr.Value(i)), nil
	case *array.Int32:
		return int64(arr.Value(i)), nil
	case *array.Int64:
		return arr.Value(i), nil
	case *array.Uint8:
		return int64(arr.Value(i)), nil
	case *array.Uint16:
		return int64(arr.Value(i)), nil
	case *array.Uint32:
		return int64(arr.Value(i)), nil
	case *array.Uint64:
		v := arr.Value(i)
		if v > uint64(1)<<63-1 {
			return 0, fmt.Errorf("uint64 value %d overflows int64", v)
		}
		return int64(v), nil
	}
	return 0, fmt.Errorf("unexpected integer chunk %T", chunk)
}
