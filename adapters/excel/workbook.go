// Package excel writes and reads dataset tables as XLSX workbooks.
package excel

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"enigh/internal/dataset"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of a workbook.
type Sheet struct {
	Name  string
	Table *dataset.Table
	// ColWidth applies to every column when positive.
	ColWidth float64
}

// WriteWorkbook streams the sheets into a new workbook. The header row is bold;
// cells that read back as the same number are written as numbers, everything else
// as text so identifiers like "0100013605" keep their leading zeros.
func WriteWorkbook(w io.Writer, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for n, sheet := range sheets {
		if n == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return fmt.Errorf("failed to name sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet, bold); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet, headerStyle int) error {
	sw, err := f.NewStreamWriter(sheet.Name)
	if err != nil {
		return fmt.Errorf("failed to open sheet %q: %w", sheet.Name, err)
	}

	cols := len(sheet.Table.Headers)
	if sheet.ColWidth > 0 && cols > 0 {
		if err := sw.SetColWidth(1, cols, sheet.ColWidth); err != nil {
			return fmt.Errorf("failed to size columns of %q: %w", sheet.Name, err)
		}
	}

	header := make([]interface{}, cols)
	for i, h := range sheet.Table.Headers {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", sheet.Name, err)
	}

	for r, row := range sheet.Table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = cellValue(v)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", r+1, sheet.Name, err)
		}
	}
	return sw.Flush()
}

func cellValue(raw string) interface{} {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || strconv.FormatFloat(v, 'f', -1, 64) != raw {
		return raw
	}
	return v
}

// readSheet loads one worksheet as a table; the first row is the header.
func readSheet(r io.Reader, sheet string) (*dataset.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// GetRows trims trailing empty cells
		for len(row) < len(headers) {
			row = append(row, "")
		}
		data = append(data, row[:len(headers)])
	}
	return dataset.NewTable(sheet, headers, data), nil
}

// SheetNames lists the worksheets of a workbook in order.
func SheetNames(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
