package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/stockbook/book"
)

const moneyFormat = "#,##0.00"

// WriteXLSX writes every view of snap as a sheet of one workbook.
func WriteXLSX(w io.Writer, snap *book.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	number, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(moneyFormat)})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}
	date, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("yyyy-mm-dd hh:mm")})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	for i, t := range Tables(snap) {
		sheet := sheetName(t.Name)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		if err := writeRow(f, sheet, 1, toAny(t.Header)); err != nil {
			return err
		}
		if err := f.SetRowStyle(sheet, 1, 1, header); err != nil {
			return err
		}

		for r, row := range t.Rows {
			cells := make([]any, len(row))
			for c, v := range row {
				cells[c] = cellValue(v)
				style := 0
				switch cells[c].(type) {
				case float64:
					style = number
				case time.Time:
					style = date
				}
				if style != 0 {
					cell, err := excelize.CoordinatesToCellName(c+1, r+2)
					if err != nil {
						return err
					}
					if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
						return err
					}
				}
			}
			if err := writeRow(f, sheet, r+2, cells); err != nil {
				return err
			}
		}

		last, err := excelize.ColumnNumberToName(len(t.Header))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

// cellValue converts a table value to something excelize stores natively.
// Decimals become floats; the two-place number format keeps the display
// exact for the amounts a shop ledger holds.
func cellValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return x.InexactFloat64()
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case bool:
		return text(x)
	}
	return v
}

func sheetName(view string) string {
	return strings.ToUpper(view[:1]) + view[1:]
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
