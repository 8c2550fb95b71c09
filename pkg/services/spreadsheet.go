package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/datakiln/ingest-engine/pkg/models"
)

// parseSpreadsheet reads one sheet of an xlsx/xls workbook. Sheet-name
// enumeration is best-effort: an empty list only yields a warning. The sheet
// named in hints wins when present; otherwise the first sheet is read, with
// one retry against sheet index 0 before the entry fails.
func (p *formatProcessor) parseSpreadsheet(data []byte, name string, hints models.IngestHints, meta *models.FileMetadata) (*models.Table, []string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer func() { _ = wb.Close() }()

	var warnings []string
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		warnings = append(warnings, fmt.Sprintf("%s: could not enumerate sheet names", name))
	}
	meta.SheetNames = sheets

	target := ""
	if hints.SheetName != "" {
		for _, s := range sheets {
			if s == hints.SheetName {
				target = s
				break
			}
		}
		if target == "" {
			warnings = append(warnings, fmt.Sprintf("%s: requested sheet %q not found, using first sheet", name, hints.SheetName))
		}
	}
	if target == "" && len(sheets) > 0 {
		target = sheets[0]
	}

	rows, err := wb.GetRows(target)
	if err != nil {
		// One retry against sheet index 0 before giving up.
		retry := wb.GetSheetName(0)
		warnings = append(warnings, fmt.Sprintf("%s: reading sheet %q failed (%v), retrying sheet %q", name, target, err, retry))
		rows, err = wb.GetRows(retry)
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %q of %s: %w", retry, name, err)
		}
		target = retry
	}

	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q of %s is empty", target, name)
	}

	// excelize trims trailing empty cells per row; normalize to the widest.
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	header := fitWidth(rows[0], width)
	body := make([][]string, len(rows)-1)
	for i, row := range rows[1:] {
		body[i] = fitWidth(row, width)
	}

	return tableFromRecords(header, body), warnings, nil
}
