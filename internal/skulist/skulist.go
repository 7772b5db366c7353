// Package skulist reads identifier lists from CSV files and Excel workbooks.
package skulist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultColumn is the header looked up when none is configured
const DefaultColumn = "SKU"

// ErrMissingColumn is returned when the header row lacks the requested column
var ErrMissingColumn = errors.New("column not found")

// Options selects the column and, for workbooks, the sheet to read
type Options struct {
	Column string
	Sheet  string
}

func (o Options) column() string {
	if o.Column == "" {
		return DefaultColumn
	}
	return o.Column
}

// ReadFile reads identifiers from path. Files ending in .csv are parsed as
// CSV, anything else is opened as an Excel workbook.
func ReadFile(path string, opts Options) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f, opts)
	}
	return ReadExcel(f, opts)
}

// ReadCSV reads identifiers from CSV with a header row
func ReadCSV(r io.Reader, opts Options) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return extract(rows, opts.column())
}

// ReadExcel reads identifiers from the first sheet of a workbook, or from
// opts.Sheet when set
func ReadExcel(r io.Reader, opts Options) ([]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return extract(rows, opts.column())
}

func extract(rows [][]string, column string) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s (empty input)", ErrMissingColumn, column)
	}

	idx := -1
	for i, cell := range rows[0] {
		if strings.TrimSpace(cell) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, column)
	}

	skus := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			skus = append(skus, v)
		}
	}
	return skus, nil
}
