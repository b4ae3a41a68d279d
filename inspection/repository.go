package inspection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidPeriod is returned when the period start falls after its end.
var ErrInvalidPeriod = errors.New("inspection: period start after period end")

// Querier is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// EligibleWhere is the batching predicate over inspections aliased i. start
// and end are the placeholders of the inclusive period bounds.
func EligibleWhere(start, end string) string {
	return `i.status = 'COMPLETED'
  AND i.owed_amount IS NOT NULL
  AND i.owed_amount <> 0
  AND i.completion_date BETWEEN ` + start + `::date AND ` + end + `::date
  AND NOT EXISTS (
      SELECT 1 FROM payment_lot_inspections l WHERE l.inspection_id = i.id
  )`
}

var eligibleSQL = `
SELECT i.id, i.inspector_id, i.vessel_name, i.status, i.completion_date, i.owed_amount
FROM inspections i
WHERE ` + EligibleWhere("$2", "$3") + `
  AND (NULLIF($1, '')::uuid IS NULL OR i.inspector_id = NULLIF($1, '')::uuid)
ORDER BY i.id
`

// ListEligible returns the inspections that can be batched for the filter.
// The result is never nil.
func (r *Repository) ListEligible(ctx context.Context, q Querier, filter EligibilityFilter) ([]Inspection, error) {
	return r.listEligible(ctx, q, filter, eligibleSQL)
}

// LockEligible is ListEligible with row locks held on every returned
// inspection until the surrounding transaction ends. Rows are locked in id
// order so concurrent generators queue instead of deadlocking.
func (r *Repository) LockEligible(ctx context.Context, tx pgx.Tx, filter EligibilityFilter) ([]Inspection, error) {
	return r.listEligible(ctx, tx, filter, eligibleSQL+"FOR UPDATE OF i\n")
}

func (r *Repository) listEligible(ctx context.Context, q Querier, filter EligibilityFilter, query string) ([]Inspection, error) {
	if filter.PeriodStart.After(filter.PeriodEnd) {
		return nil, ErrInvalidPeriod
	}

	rows, err := q.Query(ctx, query, filter.InspectorID, DateOnly(filter.PeriodStart), DateOnly(filter.PeriodEnd))
	if err != nil {
		return nil, fmt.Errorf("inspection: list eligible: %w", err)
	}
	defer rows.Close()

	out := []Inspection{}
	for rows.Next() {
		var in Inspection
		if err := rows.Scan(&in.ID, &in.InspectorID, &in.VesselName, &in.Status, &in.CompletionDate, &in.OwedAmount); err != nil {
			return nil, fmt.Errorf("inspection: scan eligible: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspection: iterate eligible: %w", err)
	}
	return out, nil
}

// ActiveLotID returns the lot currently holding inspectionID, if any.
func (r *Repository) ActiveLotID(ctx context.Context, q Querier, inspectionID string) (string, bool, error) {
	var lotID string
	err := q.QueryRow(ctx, `SELECT lot_id::text FROM payment_lot_inspections WHERE inspection_id = $1`, inspectionID).Scan(&lotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("inspection: active link: %w", err)
	}
	return lotID, true, nil
}
