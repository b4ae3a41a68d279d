package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 starts a Postgres 16 container and returns a DSN. If overrideDSN or
// DATABASE_URL is set, it reuses that database.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("inspectpay"),
		postgres.WithUsername("inspectpay"),
		postgres.WithPassword("inspectpay"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}

type RedisContainer struct {
	C *tcredis.RedisContainer
}

// StartRedis7 starts a Redis 7 container and returns its URL. REDIS_URL, when
// set, is reused instead.
func StartRedis7(ctx context.Context) (*RedisContainer, string, error) {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return &RedisContainer{}, url, nil
	}

	rC, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, "", err
	}
	url, err := rC.ConnectionString(ctx)
	if err != nil {
		_ = rC.Terminate(ctx)
		return nil, "", err
	}
	return &RedisContainer{C: rC}, url, nil
}

func (r *RedisContainer) Terminate(ctx context.Context) error {
	if r == nil || r.C == nil {
		return nil
	}
	return r.C.Terminate(ctx)
}
