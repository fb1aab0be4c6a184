package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// amountFormat is the built-in "#,##0.00" number format.
const amountFormat = 4

// WriteXLSX writes the table to a single-sheet workbook.
func WriteXLSX(w io.Writer, sheet string, t Table) error {
	if sheet == "" {
		sheet = "Rapprochement"
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	boldMoney, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: amountFormat})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	records := t.Records(Float)
	last := len(records)
	for i, rec := range records {
		rowNo := i + 1
		cell, err := excelize.CoordinatesToCellName(1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rec); err != nil {
			return fmt.Errorf("write row %d: %w", rowNo, err)
		}
		for col, c := range t.Columns {
			style := 0
			switch {
			case rowNo == 1:
				style = bold
			case rowNo == last && c.IsAmount():
				style = boldMoney
			case rowNo == last:
				style = bold
			case c.IsAmount():
				style = money
			}
			if style == 0 {
				continue
			}
			name, _ := excelize.CoordinatesToCellName(col+1, rowNo)
			if err := f.SetCellStyle(sheet, name, name, style); err != nil {
				return fmt.Errorf("style %s: %w", name, err)
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(t.Columns))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 15); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
