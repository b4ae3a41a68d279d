package inspector

import (
	"context"
	"fmt"

	"inspectpay/inspection"
)

// Repository aggregates eligible inspections per inspector.
type Repository struct {
	db inspection.Querier
}

// NewRepository wires a pgx-backed repository implementation.
func NewRepository(db inspection.Querier) *Repository {
	return &Repository{db: db}
}

var workloadSQL = `
SELECT u.id::text, u.full_name, COUNT(*), SUM(i.owed_amount), MIN(i.completion_date)
FROM inspections i
JOIN users u ON u.id = i.inspector_id
WHERE ` + inspection.EligibleWhere("$1", "$2") + `
GROUP BY u.id, u.full_name
ORDER BY SUM(i.owed_amount) DESC, u.full_name ASC
`

// ListWorkloads returns every inspector holding at least one eligible
// inspection in the period, largest amount first.
func (r *Repository) ListWorkloads(ctx context.Context, period Period) ([]Workload, error) {
	rows, err := r.db.Query(ctx, workloadSQL, inspection.DateOnly(period.Start), inspection.DateOnly(period.End))
	if err != nil {
		return nil, fmt.Errorf("inspector: list workloads: %w", err)
	}
	defer rows.Close()

	workloads := []Workload{}
	for rows.Next() {
		var w Workload
		if err := rows.Scan(&w.InspectorID, &w.FullName, &w.EligibleCount, &w.EligibleTotal, &w.OldestCompleted); err != nil {
			return nil, fmt.Errorf("inspector: scan workload: %w", err)
		}
		workloads = append(workloads, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspector: iterate workloads: %w", err)
	}

	return workloads, nil
}
