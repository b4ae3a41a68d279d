package inspector

import (
	"time"

	"github.com/shopspring/decimal"
)

// Workload summarizes the batchable work of one inspector for a period.
type Workload struct {
	InspectorID     string          `json:"inspector_id"`
	FullName        string          `json:"full_name"`
	EligibleCount   int             `json:"eligible_count"`
	EligibleTotal   decimal.Decimal `json:"eligible_total"`
	OldestCompleted time.Time       `json:"oldest_completed"`
}

// Period is an inclusive date range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
