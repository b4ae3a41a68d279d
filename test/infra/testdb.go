package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// NewTestDB returns a pool on a freshly migrated, isolated schema. It uses
// DATABASE_URL when set and a throwaway container otherwise. The test is
// skipped in -short mode or when neither is available.
func NewTestDB(t testing.TB) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("DATABASE_URL") == "" && testing.Short() {
		t.Skip("DATABASE_URL is empty and -short is set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgC, dsn, err := StartPostgres16(ctx, "")
	if err != nil {
		t.Skipf("postgres unavailable (set DATABASE_URL to run integration tests): %v", err)
	}

	pool, cleanup, err := ApplyMigrations(ctx, dsn, true)
	if err != nil {
		_ = pgC.Terminate(ctx)
		t.Fatalf("apply migrations: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pool.Close()
		_ = cleanup(ctx)
		_ = pgC.Terminate(ctx)
	})
	return pool
}

// SeedUser inserts a user with the given role and returns its id.
func SeedUser(ctx context.Context, t testing.TB, pool *pgxpool.Pool, role string) string {
	t.Helper()
	var id string
	email := fmt.Sprintf("%s+%s@example.com", role, uuid.NewString())
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (full_name, email, role) VALUES ($1, $2, $3::user_role) RETURNING id::text`,
		"Test "+role, email, role,
	).Scan(&id); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// InspectionSeed describes one inspections row. A nil Owed leaves owed_amount NULL.
type InspectionSeed struct {
	InspectorID    string
	Status         string
	CompletionDate *time.Time
	Owed           *decimal.Decimal
	Vessel         string
}

// SeedInspection inserts an inspection and returns its id.
func SeedInspection(ctx context.Context, t testing.TB, pool *pgxpool.Pool, s InspectionSeed) string {
	t.Helper()
	if s.Status == "" {
		s.Status = "COMPLETED"
	}
	if s.Vessel == "" {
		s.Vessel = "MV " + uuid.NewString()[:8]
	}
	var owed decimal.NullDecimal
	if s.Owed != nil {
		owed = decimal.NewNullDecimal(*s.Owed)
	}

	var id string
	if err := pool.QueryRow(ctx, `
		INSERT INTO inspections (inspector_id, vessel_name, status, completion_date, owed_amount)
		VALUES ($1, $2, $3::inspection_status, $4, $5)
		RETURNING id::text
	`, s.InspectorID, s.Vessel, s.Status, s.CompletionDate, owed).Scan(&id); err != nil {
		t.Fatalf("seed inspection: %v", err)
	}
	return id
}

// Date builds a UTC calendar date.
func Date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// Money parses a decimal literal and panics on malformed input.
func Money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
