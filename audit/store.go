package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore writes events to audit_logs. Replays of the same event id are ignored.
type PostgresStore struct {
	db Execer
}

func NewPostgresStore(db Execer) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload: %w", err)
	}

	const insertSQL = `
INSERT INTO audit_logs (event_id, action, lot_id, actor_id, payload, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb, $6)
ON CONFLICT (event_id) DO NOTHING;
`
	if _, err := s.db.Exec(ctx, insertSQL, event.ID, event.Action, event.LotID, event.ActorID, string(b), event.Timestamp); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// LogStore mirrors events into the structured log.
type LogStore struct {
	logger logrus.FieldLogger
}

func NewLogStore(logger logrus.FieldLogger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(_ context.Context, event Event) error {
	s.logger.WithFields(logrus.Fields{
		"module":   "audit",
		"event_id": event.ID,
		"action":   event.Action,
		"lot_id":   event.LotID,
		"actor_id": event.ActorID,
		"payload":  event.Payload,
	}).Info("audit event")
	return nil
}

// Tee appends every event to all stores and joins their errors.
type Tee []Store

func (t Tee) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range t {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
