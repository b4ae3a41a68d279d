package inspection

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEligible(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	day := func(d int) *time.Time {
		v := time.Date(2024, 3, d, 15, 30, 0, 0, time.UTC)
		return &v
	}
	owed := decimal.NewNullDecimal(decimal.RequireFromString("120.50"))

	cases := []struct {
		name string
		in   Inspection
		want bool
	}{
		{"completed with amount", Inspection{Status: StatusCompleted, CompletionDate: day(10), OwedAmount: owed}, true},
		{"first day inclusive", Inspection{Status: StatusCompleted, CompletionDate: day(1), OwedAmount: owed}, true},
		{"last day inclusive", Inspection{Status: StatusCompleted, CompletionDate: day(31), OwedAmount: owed}, true},
		{"approved is not completed", Inspection{Status: StatusApproved, CompletionDate: day(10), OwedAmount: owed}, false},
		{"null amount", Inspection{Status: StatusCompleted, CompletionDate: day(10)}, false},
		{"zero amount", Inspection{Status: StatusCompleted, CompletionDate: day(10), OwedAmount: decimal.NewNullDecimal(decimal.Zero)}, false},
		{"no completion date", Inspection{Status: StatusCompleted, OwedAmount: owed}, false},
		{"end bound at midnight", Inspection{Status: StatusCompleted, CompletionDate: &end, OwedAmount: owed}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Eligible(start, end); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	in := Inspection{Status: StatusCompleted, CompletionDate: &april, OwedAmount: owed}
	if in.Eligible(start, end) {
		t.Fatalf("expected inspection after period end to be ineligible")
	}
}

func TestEligibleWhere_Placeholders(t *testing.T) {
	where := EligibleWhere("$7", "$8")
	for _, want := range []string{"BETWEEN $7::date AND $8::date", "i.status = 'COMPLETED'", "payment_lot_inspections"} {
		if !strings.Contains(where, want) {
			t.Errorf("expected predicate to contain %q, got:\n%s", want, where)
		}
	}
	if !strings.Contains(eligibleSQL, EligibleWhere("$2", "$3")) {
		t.Errorf("eligibility query does not embed the shared predicate")
	}
}
