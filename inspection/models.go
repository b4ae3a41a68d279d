package inspection

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Inspection mirrors the inspections columns read by the payment engine.
// Workflow transitions are owned elsewhere; this package only reads.
type Inspection struct {
	ID             string
	InspectorID    string
	VesselName     string
	Status         Status
	CompletionDate *time.Time
	OwedAmount     decimal.NullDecimal
}

// EligibilityFilter selects inspections by completion date. An empty
// InspectorID matches every inspector. Both bounds are inclusive dates.
type EligibilityFilter struct {
	InspectorID string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Eligible reports whether in satisfies the batching predicate for the
// period, ignoring the active-link condition which only storage can answer.
func (in Inspection) Eligible(start, end time.Time) bool {
	if in.Status != StatusCompleted {
		return false
	}
	if !in.OwedAmount.Valid || in.OwedAmount.Decimal.IsZero() {
		return false
	}
	if in.CompletionDate == nil {
		return false
	}
	d := DateOnly(*in.CompletionDate)
	return !d.Before(DateOnly(start)) && !d.After(DateOnly(end))
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
