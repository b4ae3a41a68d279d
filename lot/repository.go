package lot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"inspectpay/inspection"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const lotColumns = `id::text, inspector_id::text, period_type, period_start, period_end, status,
       inspection_count, total_value, payment_date, payment_method, paid_by_user_id::text,
       notes, created_by_user_id::text, cancelled_at, created_at, updated_at`

func scanLot(row pgx.Row) (Lot, error) {
	var l Lot
	err := row.Scan(
		&l.ID,
		&l.InspectorID,
		&l.PeriodType,
		&l.PeriodStart,
		&l.PeriodEnd,
		&l.Status,
		&l.InspectionCount,
		&l.TotalValue,
		&l.PaymentDate,
		&l.PaymentMethod,
		&l.PaidByUserID,
		&l.Notes,
		&l.CreatedByUserID,
		&l.CancelledAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

func notFoundOr(err error, format string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLotNotFound
	}
	return fmt.Errorf(format, err)
}

// lookupErr is notFoundOr for queries whose only uuid argument is the lot id,
// so a malformed id names no lot.
func lookupErr(err error, format string) error {
	if isInvalidText(err) {
		return ErrLotNotFound
	}
	return notFoundOr(err, format)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// InsertLot writes a PENDING lot header.
func (r *Repository) InsertLot(ctx context.Context, tx pgx.Tx, l Lot) (Lot, error) {
	insertSQL := `
INSERT INTO payment_lots (id, inspector_id, period_type, period_start, period_end, status,
                          inspection_count, total_value, notes, created_by_user_id)
VALUES ($1, $2, $3::lot_period_type, $4::date, $5::date, 'PENDING', $6, $7, $8, $9)
RETURNING ` + lotColumns

	out, err := scanLot(tx.QueryRow(ctx, insertSQL,
		l.ID,
		l.InspectorID,
		string(l.PeriodType),
		l.PeriodStart,
		l.PeriodEnd,
		l.InspectionCount,
		l.TotalValue,
		l.Notes,
		l.CreatedByUserID,
	))
	if err != nil {
		return Lot{}, fmt.Errorf("lot: insert lot: %w", err)
	}
	return out, nil
}

// InsertLinks attaches every link to its lot in a single batch round trip.
func (r *Repository) InsertLinks(ctx context.Context, tx pgx.Tx, links []Link) error {
	if len(links) == 0 {
		return nil
	}

	const insertSQL = `
INSERT INTO payment_lot_inspections (lot_id, inspection_id, value_at_inclusion)
VALUES ($1, $2, $3);
`
	batch := &pgx.Batch{}
	for _, link := range links {
		batch.Queue(insertSQL, link.LotID, link.InspectionID, link.ValueAtInclusion)
	}

	results := tx.SendBatch(ctx, batch)
	for range links {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("lot: insert link: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("lot: close link batch: %w", err)
	}
	return nil
}

// LockLot reads the lot and holds its row lock until the transaction ends.
func (r *Repository) LockLot(ctx context.Context, tx pgx.Tx, id string) (Lot, error) {
	l, err := scanLot(tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM payment_lots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Lot{}, lookupErr(err, "lot: lock lot: %w")
	}
	return l, nil
}

// MarkPaid moves a locked PENDING lot to PAID.
func (r *Repository) MarkPaid(ctx context.Context, tx pgx.Tx, params MarkPaidParams, paidAt time.Time) (Lot, error) {
	updateSQL := `
UPDATE payment_lots
SET status = 'PAID',
    payment_date = $2,
    payment_method = $3,
    paid_by_user_id = $4,
    notes = COALESCE($5, notes)
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + lotColumns

	l, err := scanLot(tx.QueryRow(ctx, updateSQL, params.LotID, paidAt, params.PaymentMethod, params.ActorID, optional(params.Notes)))
	if err != nil {
		return Lot{}, notFoundOr(err, "lot: mark paid: %w")
	}
	return l, nil
}

// Cancel moves a locked PENDING lot to CANCELLED. A non-empty reason replaces the notes.
func (r *Repository) Cancel(ctx context.Context, tx pgx.Tx, params CancelParams, cancelledAt time.Time) (Lot, error) {
	updateSQL := `
UPDATE payment_lots
SET status = 'CANCELLED',
    cancelled_at = $2,
    notes = COALESCE($3, notes)
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + lotColumns

	l, err := scanLot(tx.QueryRow(ctx, updateSQL, params.LotID, cancelledAt, optional(params.Reason)))
	if err != nil {
		return Lot{}, notFoundOr(err, "lot: cancel: %w")
	}
	return l, nil
}

// DeleteLinks releases every inspection held by the lot.
func (r *Repository) DeleteLinks(ctx context.Context, tx pgx.Tx, lotID string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM payment_lot_inspections WHERE lot_id = $1`, lotID)
	if err != nil {
		return 0, fmt.Errorf("lot: delete links: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteLot removes a lot row. The schema only accepts CANCELLED lots.
func (r *Repository) DeleteLot(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM payment_lots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("lot: delete lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, q inspection.Querier, id string) (Lot, error) {
	l, err := scanLot(q.QueryRow(ctx, `SELECT `+lotColumns+` FROM payment_lots WHERE id = $1`, id))
	if err != nil {
		return Lot{}, lookupErr(err, "lot: get: %w")
	}
	return l, nil
}

// Items lists the inspections linked to the lot together with their current state.
func (r *Repository) Items(ctx context.Context, q inspection.Querier, lotID string) ([]Item, error) {
	const query = `
SELECT l.inspection_id::text, i.vessel_name, i.completion_date, l.value_at_inclusion, i.owed_amount, i.status
FROM payment_lot_inspections l
JOIN inspections i ON i.id = l.inspection_id
WHERE l.lot_id = $1
ORDER BY i.completion_date, l.inspection_id
`
	rows, err := q.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("lot: list items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.InspectionID, &it.VesselName, &it.CompletionDate, &it.ValueAtInclusion, &it.CurrentOwed, &it.CurrentStatus); err != nil {
			return nil, fmt.Errorf("lot: scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lot: iterate items: %w", err)
	}
	return items, nil
}

// List returns one page of lots, newest first, and the total matching count.
func (r *Repository) List(ctx context.Context, q inspection.Querier, filter ListFilter) ([]Lot, int, error) {
	const where = `
WHERE (NULLIF($1, '')::uuid IS NULL OR inspector_id = NULLIF($1, '')::uuid)
  AND (NULLIF($2, '')::lot_status IS NULL OR status = NULLIF($2, '')::lot_status)
`
	query := `SELECT ` + lotColumns + ` FROM payment_lots` + where + `ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`

	rows, err := q.Query(ctx, query, filter.InspectorID, string(filter.Status), filter.PageSize, (filter.Page-1)*filter.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("lot: list: %w", err)
	}
	defer rows.Close()

	lots := []Lot{}
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("lot: scan list: %w", err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("lot: iterate list: %w", err)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payment_lots`+where, filter.InspectorID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("lot: count list: %w", err)
	}
	return lots, total, nil
}

// Summarize aggregates PENDING lots by period overlap and PAID lots by
// payment date. paidUntil is exclusive.
func (r *Repository) Summarize(ctx context.Context, q inspection.Querier, start, end, paidFrom, paidUntil *time.Time) (Summary, error) {
	const query = `
SELECT
    COUNT(*) FILTER (WHERE status = 'PENDING'
        AND ($2::date IS NULL OR period_start <= $2::date)
        AND ($1::date IS NULL OR period_end >= $1::date)),
    COALESCE(SUM(total_value) FILTER (WHERE status = 'PENDING'
        AND ($2::date IS NULL OR period_start <= $2::date)
        AND ($1::date IS NULL OR period_end >= $1::date)), 0),
    COUNT(*) FILTER (WHERE status = 'PAID'
        AND ($3::timestamptz IS NULL OR payment_date >= $3::timestamptz)
        AND ($4::timestamptz IS NULL OR payment_date < $4::timestamptz)),
    COALESCE(SUM(total_value) FILTER (WHERE status = 'PAID'
        AND ($3::timestamptz IS NULL OR payment_date >= $3::timestamptz)
        AND ($4::timestamptz IS NULL OR payment_date < $4::timestamptz)), 0)
FROM payment_lots
`
	var (
		s            Summary
		pendingTotal decimal.Decimal
		paidTotal    decimal.Decimal
	)
	if err := q.QueryRow(ctx, query, start, end, paidFrom, paidUntil).Scan(&s.Pending.Count, &pendingTotal, &s.Paid.Count, &paidTotal); err != nil {
		return Summary{}, fmt.Errorf("lot: summarize: %w", err)
	}
	s.Pending.Total = pendingTotal
	s.Paid.Total = paidTotal
	return s, nil
}
