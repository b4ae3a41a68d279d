package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that returns rows only when an invariant is broken.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_inspection_in_one_lot",
			SQL: `SELECT inspection_id, COUNT(*) FROM payment_lot_inspections
                  GROUP BY inspection_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_totals_match_links",
			SQL: `SELECT l.id, l.inspection_count, l.total_value, COUNT(pli.inspection_id), COALESCE(SUM(pli.value_at_inclusion), 0)
                  FROM payment_lots l
                  LEFT JOIN payment_lot_inspections pli ON pli.lot_id = l.id
                  WHERE l.status <> 'CANCELLED'
                  GROUP BY l.id
                  HAVING l.inspection_count <> COUNT(pli.inspection_id)
                      OR l.total_value <> COALESCE(SUM(pli.value_at_inclusion), 0)`,
		},
		{
			Name: "O3_cancelled_lot_released",
			SQL: `SELECT pli.* FROM payment_lot_inspections pli
                  JOIN payment_lots l ON l.id = pli.lot_id
                  WHERE l.status = 'CANCELLED'`,
		},
		{
			Name: "O4_payment_fields",
			SQL: `SELECT id, status FROM payment_lots
                  WHERE (status = 'PAID') <> (payment_date IS NOT NULL AND payment_method IS NOT NULL AND paid_by_user_id IS NOT NULL)`,
		},
		{
			Name: "O5_linked_inspection_fits_lot",
			SQL: `SELECT pli.lot_id, i.id FROM payment_lot_inspections pli
                  JOIN payment_lots l ON l.id = pli.lot_id
                  JOIN inspections i ON i.id = pli.inspection_id
                  WHERE i.inspector_id <> l.inspector_id
                     OR i.status <> 'COMPLETED'
                     OR i.completion_date NOT BETWEEN l.period_start AND l.period_end`,
		},
		{
			Name: "O6_empty_lot",
			SQL:  `SELECT id FROM payment_lots WHERE inspection_count = 0 OR total_value < 0`,
		},
		{
			Name: "O7_guard_triggers",
			SQL: `SELECT t.name FROM (VALUES ('payment_lots_guard_update'), ('payment_lots_guard_delete'), ('payment_lot_inspections_freeze')) AS t(name)
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = t.name)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
