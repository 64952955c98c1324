// Package export writes report tables to tabular sinks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/maltedev/storefront-auditor/internal/report"
)

const (
	defaultSheet = "Sheet1"
	columnWidth  = 22
	// blank rows between a detail sheet's attribute and image tables
	detailGap = 2
)

// WriteWorkbook renders every table of r into its own worksheet, followed by
// one worksheet per detail sheet.
func WriteWorkbook(r *report.Report, w io.Writer) error {
	f, err := buildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveWorkbook is WriteWorkbook to a file path.
func SaveWorkbook(r *report.Report, path string) error {
	f, err := buildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func buildWorkbook(r *report.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	first := true
	addSheet := func(name string) error {
		if first {
			first = false
			return f.SetSheetName(defaultSheet, name)
		}
		_, err := f.NewSheet(name)
		return err
	}

	for _, t := range r.Tables {
		if err := addSheet(t.Name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %s: %w", t.Name, err)
		}
		if _, err := writeTable(f, t.Name, t, 1, header); err != nil {
			f.Close()
			return nil, err
		}
	}

	for _, d := range r.Details {
		if err := addSheet(d.Name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %s: %w", d.Name, err)
		}
		next, err := writeTable(f, d.Name, d.Info, 1, header)
		if err != nil {
			f.Close()
			return nil, err
		}
		if d.Images.Len() > 0 {
			if _, err := writeTable(f, d.Name, d.Images, next+detailGap, header); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// writeTable writes t starting at startRow and returns the first row after it.
func writeTable(f *excelize.File, sheet string, t report.Table, startRow int, headerStyle int) (int, error) {
	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}

	row := startRow
	if err := setRow(f, sheet, row, header); err != nil {
		return 0, err
	}
	if err := f.SetRowStyle(sheet, row, row, headerStyle); err != nil {
		return 0, fmt.Errorf("failed to style header of %s: %w", sheet, err)
	}

	for i := range t.Rows {
		row++
		if err := setRow(f, sheet, row, t.Values(i)); err != nil {
			return 0, err
		}
	}

	if len(t.Columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(t.Columns))
		if err != nil {
			return 0, err
		}
		if err := f.SetColWidth(sheet, "A", last, columnWidth); err != nil {
			return 0, fmt.Errorf("failed to set column width of %s: %w", sheet, err)
		}
	}

	return row + 1, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
