package preview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspectpay/inspector"
	"inspectpay/logging"
	"inspectpay/test/infra"
)

type countingSource struct {
	mu        sync.Mutex
	calls     int
	workloads []inspector.Workload
}

func (s *countingSource) ListWorkloads(context.Context, inspector.Period) ([]inspector.Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]inspector.Workload, len(s.workloads))
	copy(out, s.workloads)
	return out, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var march = inspector.Period{
	Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
}

func TestCache_PassThroughWithoutRedis(t *testing.T) {
	source := &countingSource{workloads: []inspector.Workload{{InspectorID: "i1", EligibleCount: 1}}}
	cache := NewCache(nil, source, time.Minute, logging.Discard())

	for i := 0; i < 2; i++ {
		got, err := cache.ListWorkloads(context.Background(), march)
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 workload, got %d", len(got))
		}
	}
	if source.count() != 2 {
		t.Fatalf("expected every call to reach the source, got %d", source.count())
	}
	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("expected nil invalidate error, got %v", err)
	}
}

func TestCache_Redis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rc, url, err := infra.StartRedis7(ctx)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	rdb, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(ctx).Err())

	source := &countingSource{workloads: []inspector.Workload{{
		InspectorID:   "i1",
		FullName:      "Ana Inspector",
		EligibleCount: 2,
		EligibleTotal: decimal.RequireFromString("425.25"),
	}}}
	cache := NewCache(rdb, source, time.Minute, logging.Discard())

	first, err := cache.ListWorkloads(ctx, march)
	require.NoError(t, err)
	second, err := cache.ListWorkloads(ctx, march)
	require.NoError(t, err)

	assert.Equal(t, 1, source.count(), "second read is served from redis")
	require.Len(t, second, 1)
	assert.Equal(t, first[0].InspectorID, second[0].InspectorID)
	assert.True(t, second[0].EligibleTotal.Equal(decimal.RequireFromString("425.25")))

	require.NoError(t, cache.Invalidate(ctx))
	_, err = cache.ListWorkloads(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(), "invalidation forces a rebuild")
}
