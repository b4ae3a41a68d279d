package inspection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspectpay/inspection"
	"inspectpay/test/infra"
)

func TestListEligible_Integration(t *testing.T) {
	pool := infra.NewTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inspectorA := infra.SeedUser(ctx, t, pool, "inspector")
	inspectorB := infra.SeedUser(ctx, t, pool, "inspector")

	eligibleA := infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{InspectorID: inspectorA, CompletionDate: infra.Date(2024, 3, 5), Owed: infra.Money("100.00")})
	eligibleB := infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{InspectorID: inspectorB, CompletionDate: infra.Date(2024, 3, 31), Owed: infra.Money("80.00")})
	infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{InspectorID: inspectorA, CompletionDate: infra.Date(2024, 3, 6)})
	infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{InspectorID: inspectorA, CompletionDate: infra.Date(2024, 3, 7), Owed: infra.Money("0")})
	infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{InspectorID: inspectorA, Status: "APPROVED", CompletionDate: infra.Date(2024, 3, 8), Owed: infra.Money("10.00")})
	infra.SeedInspection(ctx, t, pool, infra.InspectionSeed{InspectorID: inspectorA, CompletionDate: infra.Date(2024, 4, 1), Owed: infra.Money("10.00")})

	repo := inspection.NewRepository()
	march := inspection.EligibilityFilter{
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	all, err := repo.ListEligible(ctx, pool, march)
	require.NoError(t, err)
	ids := []string{}
	for _, in := range all {
		ids = append(ids, in.ID)
	}
	assert.ElementsMatch(t, []string{eligibleA, eligibleB}, ids)

	march.InspectorID = inspectorA
	onlyA, err := repo.ListEligible(ctx, pool, march)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, eligibleA, onlyA[0].ID)
	assert.True(t, onlyA[0].OwedAmount.Decimal.Equal(*infra.Money("100")))

	// An active link removes the inspection from the eligible set.
	var lotID string
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO payment_lots (inspector_id, period_type, period_start, period_end, inspection_count, total_value)
		VALUES ($1, 'MONTHLY', '2024-03-01', '2024-03-31', 1, 100.00) RETURNING id::text
	`, inspectorA).Scan(&lotID))
	_, err = pool.Exec(ctx, `INSERT INTO payment_lot_inspections (lot_id, inspection_id, value_at_inclusion) VALUES ($1, $2, 100.00)`, lotID, eligibleA)
	require.NoError(t, err)

	onlyA, err = repo.ListEligible(ctx, pool, march)
	require.NoError(t, err)
	assert.NotNil(t, onlyA)
	assert.Empty(t, onlyA)

	held, ok, err := repo.ActiveLotID(ctx, pool, eligibleA)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, lotID, held)

	_, ok, err = repo.ActiveLotID(ctx, pool, eligibleB)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListEligible_InvalidPeriod(t *testing.T) {
	repo := inspection.NewRepository()
	_, err := repo.ListEligible(context.Background(), nil, inspection.EligibilityFilter{
		PeriodStart: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, inspection.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
