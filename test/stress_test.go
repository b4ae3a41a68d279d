package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"inspectpay/lot"
	"inspectpay/test/actors"
	"inspectpay/test/chaos"
	"inspectpay/test/infra"
	"inspectpay/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 0, "how long to run stress; zero skips the test")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent generators")
	flInspectors  = flag.Int("inspectors", 3, "number of inspectors sharing the period")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", true, "randomly terminate backends while actors run")
)

func TestLotConcurrency(t *testing.T) {
	if *flDuration <= 0 {
		t.Skip("stress run disabled; pass -duration to enable")
	}
	seed := *flSeed
	rand.Seed(seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	pgC, dsn, err := infra.StartPostgres16(ctx, *flDSN)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool, *flInspectors)
	period := actors.Period{
		Type:  lot.PeriodMonthly,
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	svc := lot.NewService(pool, nil, nil)
	stats := &actors.Stats{}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// generators racing for the same inspectors and period
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Generator(ctx2, svc, seedData.inspectors, seedData.adminID, period, stats, stop)
		})
	}
	g.Go(func() error { return actors.Payer(ctx2, pool, svc, seedData.adminID, stats, stop) })
	g.Go(func() error { return actors.Canceller(ctx2, pool, svc, seedData.adminID, stats, stop) })
	g.Go(func() error { return actors.Completer(ctx2, pool, seedData.inspectors, period, stop) })
	g.Go(func() error { return actors.Repricer(ctx2, pool, stop) })
	g.Go(func() error { return actors.Reader(ctx2, pool, svc, stats, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, "", stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				// the oracle's own backend may have been terminated
				t.Logf("oracle error: %v", err)
				continue
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}

	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		t.Fatalf("final oracle pass: %v", err)
	}
	if name != "" {
		dumpRecent(t, ctx, pool)
		t.Fatalf("Oracle %s failed after run. First row: %s (seed=%d)", name, row, seed)
	}
	t.Logf("stress done: %s (seed=%d)", stats, seed)
}

type seedIDs struct {
	adminID    string
	inspectors []string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, inspectors int) seedIDs {
	t.Helper()
	s := seedIDs{adminID: infra.SeedUser(ctx, t, pool, "admin")}
	for i := 0; i < inspectors; i++ {
		id := infra.SeedUser(ctx, t, pool, "inspector")
		s.inspectors = append(s.inspectors, id)
		for d := 1; d <= 5; d++ {
			infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{
				InspectorID:    id,
				CompletionDate: infra.Date(2024, time.March, d*5),
				Owed:           infra.Money(fmt.Sprintf("%d.50", 100*d)),
			})
		}
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"payment_lots", `SELECT id, inspector_id, status, inspection_count, total_value, updated_at FROM payment_lots ORDER BY updated_at DESC LIMIT 50`},
		{"payment_lot_inspections", `SELECT lot_id, inspection_id, value_at_inclusion, created_at FROM payment_lot_inspections ORDER BY created_at DESC LIMIT 50`},
		{"audit_logs", `SELECT id, lot_id, action, created_at FROM audit_logs ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
