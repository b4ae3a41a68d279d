package lot

import (
	"time"

	"github.com/shopspring/decimal"

	"inspectpay/inspection"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

type PeriodType string

const (
	PeriodDaily   PeriodType = "DAILY"
	PeriodWeekly  PeriodType = "WEEKLY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// Lot mirrors a payment_lots row. InspectionCount and TotalValue are frozen at
// generation and kept as a historical snapshot after cancellation.
type Lot struct {
	ID              string
	InspectorID     string
	PeriodType      PeriodType
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Status          Status
	InspectionCount int
	TotalValue      decimal.Decimal
	PaymentDate     *time.Time
	PaymentMethod   *string
	PaidByUserID    *string
	Notes           *string
	CreatedByUserID *string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Link ties one inspection to one lot with the amount owed at inclusion time.
type Link struct {
	LotID            string
	InspectionID     string
	ValueAtInclusion decimal.Decimal
}

// Item is one linked inspection as shown in a lot detail.
type Item struct {
	InspectionID     string
	VesselName       string
	CompletionDate   *time.Time
	ValueAtInclusion decimal.Decimal
	CurrentOwed      decimal.NullDecimal
	CurrentStatus    inspection.Status
}

type Detail struct {
	Lot   Lot
	Items []Item
}

type StatusTotals struct {
	Count int
	Total decimal.Decimal
}

type Summary struct {
	Pending StatusTotals
	Paid    StatusTotals
}

type GenerateParams struct {
	InspectorID string
	PeriodType  PeriodType
	PeriodStart time.Time
	PeriodEnd   time.Time
	ActorID     string
	Notes       string
}

type MarkPaidParams struct {
	LotID         string
	PaymentMethod string
	Notes         string
	ActorID       string
}

type CancelParams struct {
	LotID   string
	ActorID string
	Reason  string
}

type DeleteParams struct {
	LotID   string
	ActorID string
}

// SummaryFilter bounds the summary window. Nil bounds are open.
type SummaryFilter struct {
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

type ListFilter struct {
	InspectorID string
	Status      Status
	Page        int
	PageSize    int
}

type ListResult struct {
	Items    []Lot
	Total    int
	Page     int
	PageSize int
}
