package bulksync

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Workbook is a read-only handle on one uploaded spreadsheet.
type Workbook struct {
	f *excelize.File
}

// OpenWorkbook opens the xlsx file at path.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("bulksync: open workbook: %w", err)
	}
	return &Workbook{f: f}, nil
}

// Close releases the underlying file and its temp files.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// Sheets lists worksheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

// Rows opens a streaming iterator over sheet.
func (w *Workbook) Rows(sheet string) (*SheetRows, error) {
	rows, err := w.f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("bulksync: read worksheet %q: %w", sheet, err)
	}
	return &SheetRows{f: w.f, sheet: sheet, rows: rows}, nil
}

// SheetRows walks one worksheet a row at a time.
type SheetRows struct {
	f     *excelize.File
	sheet string
	rows  *excelize.Rows
	num   int
	cells []string
	err   error
}

// Next advances to the next row, including empty ones inside the used range.
func (s *SheetRows) Next() bool {
	if s.err != nil || !s.rows.Next() {
		return false
	}
	s.num++
	// RawCellValue keeps number formats from injecting grouping separators.
	s.cells, s.err = s.rows.Columns(excelize.Options{RawCellValue: true})
	return s.err == nil
}

// Num is the 1-based worksheet row number of the current row.
func (s *SheetRows) Num() int {
	return s.num
}

// Cells returns the raw cell strings of the current row.
func (s *SheetRows) Cells() []string {
	return s.cells
}

// Row returns the current row keyed by column index. Rich text runs and hyperlink
// display text come back already resolved. Empty cells of the evaluate columns are
// checked for a formula without a cached result and computed. Formula lookups load
// the whole worksheet, so only columns whose value decides the row belong there.
// Rows without any value are returned as they are.
func (s *SheetRows) Row(cols Columns, evaluate ...string) Row {
	row := toRow(s.cells)
	if row.blank() {
		return row
	}
	for _, name := range evaluate {
		idx, ok := cols[name]
		if !ok || row[idx] != "" {
			continue
		}
		if v, ok := s.evaluate(idx); ok {
			row[idx] = v
		}
	}
	return row
}

func (s *SheetRows) evaluate(idx int) (string, bool) {
	cell, err := excelize.CoordinatesToCellName(idx+1, s.num)
	if err != nil {
		return "", false
	}
	formula, err := s.f.GetCellFormula(s.sheet, cell)
	if err != nil || formula == "" {
		return "", false
	}
	v, err := s.f.CalcCellValue(s.sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", false
	}
	return v, true
}

// Err reports the first iteration error.
func (s *SheetRows) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Error()
}

// Close releases the iterator.
func (s *SheetRows) Close() error {
	return s.rows.Close()
}
