package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Store is a spreadsheet that can list and append rows of a layout.
// Rows are relative to the layout offset and exclude the header.
type Store interface {
	Rows(ctx context.Context, l Layout) ([][]string, error)
	Append(ctx context.Context, l Layout, rows [][]string) (firstRow int, err error)
}

// Workbook is a Store backed by a local XLSX file. Writes are serialized.
type Workbook struct {
	path string
	mu   sync.Mutex
}

// NewWorkbook returns a Workbook for path. The file is created on first append.
func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

func (w *Workbook) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %q: %w", w.path, err)
	}
	return f, nil
}

// Rows returns the data rows of the layout's sheet from the offset column on.
func (w *Workbook) Rows(ctx context.Context, l Layout) ([][]string, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(l.Sheet); idx == -1 {
		return nil, nil
	}
	offset, err := excelize.ColumnNameToNumber(l.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	all, err := f.GetRows(l.Sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", l.Sheet, err)
	}

	var out [][]string
	for i, row := range all {
		if i == 0 || len(row) < offset {
			continue
		}
		out = append(out, row[offset-1:])
	}
	return out, ctx.Err()
}

// Append writes rows starting at the first free row of the offset column.
// Columns left of the offset are never written. The first row written is
// returned (1-based).
func (w *Workbook) Append(ctx context.Context, l Layout, rows [][]string) (int, error) {
	if err := l.Validate(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	offset, err := excelize.ColumnNameToNumber(l.Offset)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if err := ensureSheet(f, l, offset); err != nil {
		return 0, err
	}

	first, err := firstFreeRow(f, l.Sheet, offset)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(offset, first+i)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(l.Sheet, cell, &values); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", first+i, err)
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return 0, fmt.Errorf("failed to save workbook %q: %w", w.path, err)
	}
	return first, nil
}

// ensureSheet creates the sheet with a bold header at the offset when missing.
func ensureSheet(f *excelize.File, l Layout, offset int) error {
	if idx, _ := f.GetSheetIndex(l.Sheet); idx != -1 {
		return nil
	}
	if _, err := f.NewSheet(l.Sheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", l.Sheet, err)
	}
	for i, h := range l.Header {
		cell, _ := excelize.CoordinatesToCellName(offset+i, 1)
		_ = f.SetCellValue(l.Sheet, cell, h)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		from, _ := excelize.CoordinatesToCellName(offset, 1)
		to, _ := excelize.CoordinatesToCellName(offset+len(l.Header)-1, 1)
		_ = f.SetCellStyle(l.Sheet, from, to, style)
	}
	return nil
}

// firstFreeRow is the row after the last non-empty cell of the offset column.
func firstFreeRow(f *excelize.File, sheet string, offset int) (int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	last := 0
	for i, row := range rows {
		if len(row) >= offset && strings.TrimSpace(row[offset-1]) != "" {
			last = i + 1
		}
	}
	return last + 1, nil
}
