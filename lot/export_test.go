package lot

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"inspectpay/inspection"
)

func TestWriteStatement(t *testing.T) {
	completedAt := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	d := Detail{
		Lot: Lot{
			ID:              "lot-1",
			InspectorID:     "inspector-1",
			PeriodType:      PeriodMonthly,
			PeriodStart:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			Status:          StatusPending,
			InspectionCount: 1,
			TotalValue:      decimal.RequireFromString("250.50"),
		},
		Items: []Item{{
			InspectionID:     "i1",
			VesselName:       "MV Aurora",
			CompletionDate:   &completedAt,
			ValueAtInclusion: decimal.RequireFromString("250.50"),
			CurrentStatus:    inspection.StatusCompleted,
		}},
	}

	var buf bytes.Buffer
	if err := WriteStatement(&buf, d); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(statementSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if rows[0][1] != "lot-1" {
		t.Errorf("expected lot id in B1, got %q", rows[0][1])
	}
	if rows[2][1] != "MONTHLY 2024-03-01 to 2024-03-31" {
		t.Errorf("unexpected period cell %q", rows[2][1])
	}
	last := rows[len(rows)-1]
	if last[0] != "i1" || last[1] != "MV Aurora" || last[2] != "2024-03-10" || last[3] != "250.5" {
		t.Errorf("unexpected item row %v", last)
	}
}
