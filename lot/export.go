package lot

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const statementSheet = "Statement"

// WriteStatement renders the lot detail as an xlsx workbook: a header block
// with the lot fields followed by one row per linked inspection.
func WriteStatement(w io.Writer, d Detail) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(statementSheet)
	if err != nil {
		return fmt.Errorf("lot: statement sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("lot: statement sheet: %w", err)
	}

	header := [][2]any{
		{"Lot", d.Lot.ID},
		{"Inspector", d.Lot.InspectorID},
		{"Period", fmt.Sprintf("%s %s to %s", d.Lot.PeriodType, d.Lot.PeriodStart.Format(time.DateOnly), d.Lot.PeriodEnd.Format(time.DateOnly))},
		{"Status", string(d.Lot.Status)},
		{"Inspections", d.Lot.InspectionCount},
		{"Total", d.Lot.TotalValue.InexactFloat64()},
		{"Payment date", formatTime(d.Lot.PaymentDate)},
		{"Payment method", deref(d.Lot.PaymentMethod)},
	}
	for i, kv := range header {
		row := i + 1
		if err := f.SetCellValue(statementSheet, cell("A", row), kv[0]); err != nil {
			return fmt.Errorf("lot: statement header: %w", err)
		}
		if err := f.SetCellValue(statementSheet, cell("B", row), kv[1]); err != nil {
			return fmt.Errorf("lot: statement header: %w", err)
		}
	}

	first := len(header) + 2
	columns := []string{"Inspection", "Vessel", "Completed", "Value at inclusion", "Current status"}
	for i, name := range columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetCellValue(statementSheet, cell(col, first), name); err != nil {
			return fmt.Errorf("lot: statement columns: %w", err)
		}
	}

	for i, it := range d.Items {
		row := first + 1 + i
		values := []any{
			it.InspectionID,
			it.VesselName,
			formatDate(it.CompletionDate),
			it.ValueAtInclusion.InexactFloat64(),
			string(it.CurrentStatus),
		}
		for j, v := range values {
			col, _ := excelize.ColumnNumberToName(j + 1)
			if err := f.SetCellValue(statementSheet, cell(col, row), v); err != nil {
				return fmt.Errorf("lot: statement row: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("lot: write statement: %w", err)
	}
	return nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
