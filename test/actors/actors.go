package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"inspectpay/lot"
)

// Period is the single window every actor works on, so generators collide.
type Period struct {
	Type  lot.PeriodType
	Start time.Time
	End   time.Time
}

// Stats counts actor outcomes. Safe for concurrent use.
type Stats struct {
	Generated   atomic.Int64
	NoEligible  atomic.Int64
	Conflicts   atomic.Int64
	Paid        atomic.Int64
	Cancelled   atomic.Int64
	Rejected    atomic.Int64
	Persistence atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("generated=%d no_eligible=%d conflicts=%d paid=%d cancelled=%d rejected=%d persistence=%d",
		s.Generated.Load(), s.NoEligible.Load(), s.Conflicts.Load(), s.Paid.Load(),
		s.Cancelled.Load(), s.Rejected.Load(), s.Persistence.Load())
}

// record files expected outcomes into stats. Anything else is returned.
func (s *Stats) record(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, lot.ErrNoEligibleInspections):
		s.NoEligible.Add(1)
	case errors.Is(err, lot.ErrConcurrentAssignmentConflict):
		s.Conflicts.Add(1)
	case errors.Is(err, lot.ErrInvalidStateTransition), errors.Is(err, lot.ErrLotNotFound):
		s.Rejected.Add(1)
	case errors.Is(err, lot.ErrPersistenceFailure):
		// backends get killed under chaos
		s.Persistence.Add(1)
	default:
		return err
	}
	return nil
}

func done(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func jitter(base, spread int) {
	time.Sleep(time.Duration(base+rand.Intn(spread)) * time.Millisecond)
}

// Generator keeps generating lots for random inspectors over the shared period.
func Generator(ctx context.Context, svc *lot.Service, inspectors []string, actorID string, p Period, stats *Stats, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		_, err := svc.Generate(ctx, lot.GenerateParams{
			InspectorID: inspectors[rand.Intn(len(inspectors))],
			PeriodType:  p.Type,
			PeriodStart: p.Start,
			PeriodEnd:   p.End,
			ActorID:     actorID,
		})
		if err == nil {
			stats.Generated.Add(1)
		} else if err := stats.record(err); err != nil {
			return fmt.Errorf("generator: %w", err)
		}
		jitter(5, 20)
	}
}

// Payer marks a random PENDING lot as paid.
func Payer(ctx context.Context, pool *pgxpool.Pool, svc *lot.Service, actorID string, stats *Stats, stop <-chan struct{}) error {
	methods := []string{"PIX", "TED", "BOLETO"}
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		lotID, ok := randomPending(ctx, pool)
		if ok {
			_, err := svc.MarkPaid(ctx, lot.MarkPaidParams{
				LotID:         lotID,
				PaymentMethod: methods[rand.Intn(len(methods))],
				ActorID:       actorID,
			})
			if err == nil {
				stats.Paid.Add(1)
			} else if err := stats.record(err); err != nil {
				return fmt.Errorf("payer: %w", err)
			}
		}
		jitter(20, 40)
	}
}

// Canceller cancels a random PENDING lot, releasing its inspections back to
// the eligible pool for the generators to fight over again.
func Canceller(ctx context.Context, pool *pgxpool.Pool, svc *lot.Service, actorID string, stats *Stats, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		lotID, ok := randomPending(ctx, pool)
		if ok {
			_, err := svc.Cancel(ctx, lot.CancelParams{LotID: lotID, ActorID: actorID, Reason: "stress"})
			if err == nil {
				stats.Cancelled.Add(1)
			} else if err := stats.record(err); err != nil {
				return fmt.Errorf("canceller: %w", err)
			}
		}
		jitter(30, 50)
	}
}

// Completer keeps feeding newly completed inspections into the period.
func Completer(ctx context.Context, pool *pgxpool.Pool, inspectors []string, p Period, stop <-chan struct{}) error {
	days := int(p.End.Sub(p.Start).Hours()/24) + 1
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		completed := p.Start.AddDate(0, 0, rand.Intn(days))
		owed := decimal.New(int64(50+rand.Intn(950)), 0)
		_, _ = pool.Exec(ctx, `
			INSERT INTO inspections (inspector_id, vessel_name, status, completion_date, owed_amount)
			VALUES ($1, $2, 'COMPLETED', $3, $4)
		`, inspectors[rand.Intn(len(inspectors))], fmt.Sprintf("MV Stress %d", rand.Int63()), completed, owed)
		jitter(15, 30)
	}
}

// Repricer rewrites owed amounts of linked inspections. Lot totals and link
// values must not follow.
func Repricer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		_, _ = pool.Exec(ctx, `
			UPDATE inspections SET owed_amount = owed_amount + 1, updated_at = now()
			WHERE id = (SELECT inspection_id FROM payment_lot_inspections ORDER BY random() LIMIT 1)
		`)
		jitter(40, 60)
	}
}

// Reader hits the aggregation paths while writers run.
func Reader(ctx context.Context, pool *pgxpool.Pool, svc *lot.Service, stats *Stats, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		if _, err := svc.SummarizeByStatus(ctx, lot.SummaryFilter{}); err != nil {
			if err := stats.record(err); err != nil {
				return fmt.Errorf("reader summary: %w", err)
			}
		}
		if lotID, ok := randomPending(ctx, pool); ok {
			if _, err := svc.GetDetail(ctx, lotID); err != nil {
				if err := stats.record(err); err != nil {
					return fmt.Errorf("reader detail: %w", err)
				}
			}
		}
		jitter(25, 50)
	}
}

func randomPending(ctx context.Context, pool *pgxpool.Pool) (string, bool) {
	var id string
	err := pool.QueryRow(ctx,
		`SELECT id::text FROM payment_lots WHERE status = 'PENDING' ORDER BY random() LIMIT 1`,
	).Scan(&id)
	return id, err == nil
}
