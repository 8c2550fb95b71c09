package services

import (
	"fmt"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
	"github.com/datakiln/ingest-engine/pkg/models"
)

// CombineMethod selects how tables are merged.
type CombineMethod string

const (
	CombineConcat    CombineMethod = "concat"
	CombineUnion     CombineMethod = "union"
	CombineIntersect CombineMethod = "intersect"
)

// Combine merges tables. concat and union stack all rows over the union of
// the input column sets, filling absent cells with nulls; intersect projects
// every input to the columns common to all inputs (ordered by the first
// input) before stacking. One input is a no-op; zero inputs is an error.
func (c *batchCoordinator) Combine(tables []*models.Table, method CombineMethod) (*models.Table, error) {
	if len(tables) == 0 {
		return nil, apperrors.ErrNoTables
	}
	if len(tables) == 1 {
		return tables[0], nil
	}

	switch method {
	case CombineConcat, CombineUnion:
		return stackTables(tables, unionColumns(tables)), nil
	case CombineIntersect:
		names := intersectColumns(tables)
		projected := make([]*models.Table, len(tables))
		for i, t := range tables {
			projected[i] = t.Project(names)
		}
		return stackTables(projected, names), nil
	}
	return nil, fmt.Errorf("unknown combine method %q", method)
}

// unionColumns returns the union of all column names in first-seen order.
func unionColumns(tables []*models.Table) []string {
	var order []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, name := range t.ColumnNames() {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}
	return order
}

// intersectColumns returns the columns present in every input, in the first
// input's column order.
func intersectColumns(tables []*models.Table) []string {
	var names []string
	for _, name := range tables[0].ColumnNames() {
		inAll := true
		for _, t := range tables[1:] {
			if t.Column(name) == nil {
				inAll = false
				break
			}
		}
		if inAll {
			names = append(names, name)
		}
	}
	return names
}

// stackTables appends all rows of all inputs under the given column set.
// When every input that carries a column agrees on its type the result keeps
// that type; disagreements fall back to the string rendering.
func stackTables(tables []*models.Table, names []string) *models.Table {
	out := &models.Table{}
	for _, name := range names {
		resultType, resultWidth := agreedType(tables, name)
		col := &models.Column{Name: name, Type: resultType, Width: resultWidth}
		for _, t := range tables {
			src := t.Column(name)
			for i := 0; i < t.NumRows(); i++ {
				switch {
				case src == nil:
					col.AppendNull()
				case src.Type == resultType:
					col.AppendFrom(src, i)
				default:
					col.AppendRendered(src, i)
				}
			}
		}
		out.Columns = append(out.Columns, col)
	}
	return out
}

func agreedType(tables []*models.Table, name string) (models.DType, models.Width) {
	resultType := models.DType("")
	resultWidth := models.WidthNone
	for _, t := range tables {
		src := t.Column(name)
		if src == nil {
			continue
		}
		if resultType == "" {
			resultType = src.Type
			resultWidth = src.Width
			continue
		}
		if src.Type != resultType {
			return models.DTypeString, models.WidthNone
		}
		if src.Width != resultWidth {
			resultWidth = models.WidthNone
		}
	}
	if resultType == "" {
		return models.DTypeString, models.WidthNone
	}
	return resultType, resultWidth
}
