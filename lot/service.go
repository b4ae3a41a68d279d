package lot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"inspectpay/audit"
	"inspectpay/inspection"
	"inspectpay/logging"
	"inspectpay/metrics"
)

// DB abstracts pgxpool.Pool for testability.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	inspection.Querier
}

// EligibilitySource answers the batching predicate.
type EligibilitySource interface {
	ListEligible(ctx context.Context, q inspection.Querier, filter inspection.EligibilityFilter) ([]inspection.Inspection, error)
	LockEligible(ctx context.Context, tx pgx.Tx, filter inspection.EligibilityFilter) ([]inspection.Inspection, error)
}

// LotRepository defines the data access required by the service.
type LotRepository interface {
	InsertLot(ctx context.Context, tx pgx.Tx, l Lot) (Lot, error)
	InsertLinks(ctx context.Context, tx pgx.Tx, links []Link) error
	LockLot(ctx context.Context, tx pgx.Tx, id string) (Lot, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, params MarkPaidParams, paidAt time.Time) (Lot, error)
	Cancel(ctx context.Context, tx pgx.Tx, params CancelParams, cancelledAt time.Time) (Lot, error)
	DeleteLinks(ctx context.Context, tx pgx.Tx, lotID string) (int64, error)
	DeleteLot(ctx context.Context, tx pgx.Tx, id string) error
	Get(ctx context.Context, q inspection.Querier, id string) (Lot, error)
	Items(ctx context.Context, q inspection.Querier, lotID string) ([]Item, error)
	List(ctx context.Context, q inspection.Querier, filter ListFilter) ([]Lot, int, error)
	Summarize(ctx context.Context, q inspection.Querier, start, end, paidFrom, paidUntil *time.Time) (Summary, error)
}

// AuditRecorder receives committed changes. It must not block.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Invalidator is told when the set of eligible inspections changed.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	db          DB
	repo        LotRepository
	eligible    EligibilitySource
	audit       AuditRecorder
	invalidator Invalidator
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
	tracer      trace.Tracer
	idGenerator func() string
	now         func() time.Time
}

func NewService(db DB, repo LotRepository, eligible EligibilitySource) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if eligible == nil {
		eligible = inspection.NewRepository()
	}
	return &Service{
		db:          db,
		repo:        repo,
		eligible:    eligible,
		logger:      logging.Discard(),
		tracer:      otel.Tracer("inspectpay/lot"),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithAudit(rec AuditRecorder) *Service {
	s.audit = rec
	return s
}

func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.invalidator = inv
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithLogger(logger logrus.FieldLogger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListEligible returns the inspections a generation for the filter would batch.
// The answer is advisory; Generate re-evaluates it under lock.
func (s *Service) ListEligible(ctx context.Context, filter inspection.EligibilityFilter) ([]inspection.Inspection, error) {
	if filter.PeriodStart.After(filter.PeriodEnd) {
		return nil, ErrInvalidPeriod
	}
	items, err := s.eligible.ListEligible(ctx, s.db, filter)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

// Generate claims every eligible inspection of the inspector for the period
// into a new PENDING lot. The eligibility check, the lot insert and the link
// inserts run in one serializable transaction.
func (s *Service) Generate(ctx context.Context, params GenerateParams) (Lot, error) {
	if strings.TrimSpace(params.InspectorID) == "" {
		return Lot{}, ErrMissingInspector
	}
	if !params.PeriodType.Valid() {
		return Lot{}, fmt.Errorf("%w: %q", ErrInvalidPeriodType, params.PeriodType)
	}
	params.PeriodStart = inspection.DateOnly(params.PeriodStart)
	params.PeriodEnd = inspection.DateOnly(params.PeriodEnd)
	if params.PeriodStart.After(params.PeriodEnd) {
		return Lot{}, ErrInvalidPeriod
	}

	ctx, span := s.tracer.Start(ctx, "lot.Generate", trace.WithAttributes(
		attribute.String("inspector_id", params.InspectorID),
		attribute.String("period_type", string(params.PeriodType)),
	))
	defer span.End()

	started := s.now()
	l, err := s.generate(ctx, params)
	s.metrics.ObserveGenerate(started)
	if err != nil {
		err = classify(err)
		switch {
		case errors.Is(err, ErrNoEligibleInspections):
			s.metrics.IncrementNoEligible()
		case IsValidation(err):
		case errors.Is(err, ErrConcurrentAssignmentConflict):
			s.metrics.IncrementConflicts()
			s.logger.WithFields(logrus.Fields{
				"module":       "lot",
				"inspector_id": params.InspectorID,
			}).Warn("lot generation lost a concurrent assignment race")
		default:
			logging.Error(s.logger, "lot", "Generate", "generate lot", map[string]string{"inspector_id": params.InspectorID}, err)
		}
		endSpan(span, err)
		return Lot{}, err
	}

	span.SetAttributes(attribute.String("lot_id", l.ID), attribute.Int("inspection_count", l.InspectionCount))
	s.metrics.IncrementLotsGenerated()
	s.afterCommit(ctx, audit.Event{
		Action:  audit.ActionLotGenerated,
		LotID:   l.ID,
		ActorID: params.ActorID,
		Payload: map[string]any{
			"inspector_id":     l.InspectorID,
			"period_type":      l.PeriodType,
			"period_start":     l.PeriodStart.Format(time.DateOnly),
			"period_end":       l.PeriodEnd.Format(time.DateOnly),
			"inspection_count": l.InspectionCount,
			"total_value":      l.TotalValue.StringFixed(2),
		},
	}, true)
	return l, nil
}

func (s *Service) generate(ctx context.Context, params GenerateParams) (Lot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Lot{}, fmt.Errorf("lot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	candidates, err := s.eligible.LockEligible(ctx, tx, inspection.EligibilityFilter{
		InspectorID: params.InspectorID,
		PeriodStart: params.PeriodStart,
		PeriodEnd:   params.PeriodEnd,
	})
	if err != nil {
		return Lot{}, err
	}
	if len(candidates) == 0 {
		return Lot{}, ErrNoEligibleInspections
	}

	lotID := s.idGenerator()
	total := decimal.Zero
	links := make([]Link, 0, len(candidates))
	for _, in := range candidates {
		value := in.OwedAmount.Decimal
		total = total.Add(value)
		links = append(links, Link{LotID: lotID, InspectionID: in.ID, ValueAtInclusion: value})
	}

	l, err := s.repo.InsertLot(ctx, tx, Lot{
		ID:              lotID,
		InspectorID:     params.InspectorID,
		PeriodType:      params.PeriodType,
		PeriodStart:     params.PeriodStart,
		PeriodEnd:       params.PeriodEnd,
		Status:          StatusPending,
		InspectionCount: len(links),
		TotalValue:      total,
		Notes:           optional(params.Notes),
		CreatedByUserID: optional(params.ActorID),
	})
	if err != nil {
		return Lot{}, err
	}

	if err := s.repo.InsertLinks(ctx, tx, links); err != nil {
		return Lot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Lot{}, fmt.Errorf("lot: commit generate: %w", err)
	}
	return l, nil
}

// MarkPaid records that a PENDING lot was paid. Only PENDING lots qualify.
func (s *Service) MarkPaid(ctx context.Context, params MarkPaidParams) (Lot, error) {
	params.PaymentMethod = strings.TrimSpace(params.PaymentMethod)
	if params.PaymentMethod == "" {
		return Lot{}, ErrMissingPaymentMethod
	}
	if strings.TrimSpace(params.ActorID) == "" {
		return Lot{}, ErrMissingActor
	}

	l, err := s.transition(ctx, "lot.MarkPaid", params.LotID, StatusPaid, func(tx pgx.Tx, now time.Time) (Lot, error) {
		return s.repo.MarkPaid(ctx, tx, params, now)
	})
	if err != nil {
		return Lot{}, err
	}

	s.afterCommit(ctx, audit.Event{
		Action:  audit.ActionLotPaid,
		LotID:   l.ID,
		ActorID: params.ActorID,
		Payload: map[string]any{
			"payment_method": params.PaymentMethod,
			"total_value":    l.TotalValue.StringFixed(2),
		},
	}, false)
	return l, nil
}

// Cancel voids a PENDING lot and releases its inspections for future lots.
func (s *Service) Cancel(ctx context.Context, params CancelParams) (Lot, error) {
	var released int64
	l, err := s.transition(ctx, "lot.Cancel", params.LotID, StatusCancelled, func(tx pgx.Tx, now time.Time) (Lot, error) {
		n, err := s.repo.DeleteLinks(ctx, tx, params.LotID)
		if err != nil {
			return Lot{}, err
		}
		released = n
		return s.repo.Cancel(ctx, tx, params, now)
	})
	if err != nil {
		return Lot{}, err
	}

	s.afterCommit(ctx, audit.Event{
		Action:  audit.ActionLotCancelled,
		LotID:   l.ID,
		ActorID: params.ActorID,
		Payload: map[string]any{
			"reason":   params.Reason,
			"released": released,
		},
	}, true)
	return l, nil
}

// Delete removes a CANCELLED lot. Cancelled lots hold no links, so deleting
// one never changes eligibility.
func (s *Service) Delete(ctx context.Context, params DeleteParams) error {
	ctx, span := s.tracer.Start(ctx, "lot.Delete", trace.WithAttributes(attribute.String("lot_id", params.LotID)))
	defer span.End()

	err := s.withLockedLot(ctx, params.LotID, func(tx pgx.Tx, current Lot) error {
		if current.Status != StatusCancelled {
			return fmt.Errorf("%w: lot %s is %s, only CANCELLED lots can be deleted", ErrInvalidStateTransition, current.ID, current.Status)
		}
		return s.repo.DeleteLot(ctx, tx, current.ID)
	})
	if err != nil {
		err = classify(err)
		endSpan(span, err)
		return err
	}

	s.afterCommit(ctx, audit.Event{
		Action:  audit.ActionLotDeleted,
		LotID:   params.LotID,
		ActorID: params.ActorID,
	}, false)
	return nil
}

// transition locks the lot row, checks the state machine and applies apply
// inside one read-committed transaction.
func (s *Service) transition(ctx context.Context, spanName, lotID string, to Status, apply func(tx pgx.Tx, now time.Time) (Lot, error)) (Lot, error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("lot_id", lotID),
		attribute.String("target_status", string(to)),
	))
	defer span.End()

	var out Lot
	err := s.withLockedLot(ctx, lotID, func(tx pgx.Tx, current Lot) error {
		if !CanTransition(current.Status, to) {
			return invalidTransition(current, to)
		}
		updated, err := apply(tx, s.now())
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		err = classify(err)
		if !errors.Is(err, ErrInvalidStateTransition) && !errors.Is(err, ErrLotNotFound) && !IsValidation(err) {
			logging.Error(s.logger, "lot", spanName, "transition", map[string]string{"lot_id": lotID, "target": string(to)}, err)
		}
		endSpan(span, err)
		return Lot{}, err
	}

	s.metrics.IncrementTransition(string(to))
	return out, nil
}

func (s *Service) withLockedLot(ctx context.Context, lotID string, fn func(tx pgx.Tx, current Lot) error) error {
	if strings.TrimSpace(lotID) == "" {
		return ErrLotNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("lot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.LockLot(ctx, tx, lotID)
	if err != nil {
		return err
	}

	if err := fn(tx, current); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("lot: commit: %w", err)
	}
	return nil
}

// GetDetail returns the lot and the inspections it currently holds.
func (s *Service) GetDetail(ctx context.Context, lotID string) (Detail, error) {
	if strings.TrimSpace(lotID) == "" {
		return Detail{}, ErrLotNotFound
	}
	l, err := s.repo.Get(ctx, s.db, lotID)
	if err != nil {
		return Detail{}, classify(err)
	}
	items, err := s.repo.Items(ctx, s.db, lotID)
	if err != nil {
		return Detail{}, classify(err)
	}
	return Detail{Lot: l, Items: items}, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage bounds the OFFSET derived from page and page size.
	maxPage = 1_000_000
)

// List pages through lots, newest first. Paging is clamped and echoed in the result.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > maxPageSize {
		filter.PageSize = defaultPageSize
	}
	if filter.Page > maxPage {
		filter.Page = maxPage
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return ListResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}

	lots, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return ListResult{}, classify(err)
	}
	return ListResult{Items: lots, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// SummarizeByStatus reports count and total value of PENDING and PAID lots.
// PAID lots count when their payment date falls in the window, the end date
// included through its last instant. PENDING lots count when their period
// overlaps the window.
func (s *Service) SummarizeByStatus(ctx context.Context, filter SummaryFilter) (Summary, error) {
	var start, end, paidFrom, paidUntil *time.Time
	if filter.PeriodStart != nil {
		d := inspection.DateOnly(*filter.PeriodStart)
		start, paidFrom = &d, &d
	}
	if filter.PeriodEnd != nil {
		d := inspection.DateOnly(*filter.PeriodEnd)
		next := d.AddDate(0, 0, 1)
		end, paidUntil = &d, &next
	}
	if start != nil && end != nil && start.After(*end) {
		return Summary{}, ErrInvalidPeriod
	}

	summary, err := s.repo.Summarize(ctx, s.db, start, end, paidFrom, paidUntil)
	if err != nil {
		return Summary{}, classify(err)
	}
	return summary, nil
}

// afterCommit runs the best-effort side effects of a committed change. None of
// them can fail the operation.
func (s *Service) afterCommit(ctx context.Context, event audit.Event, eligibilityChanged bool) {
	ctx = context.WithoutCancel(ctx)
	if s.audit != nil {
		s.audit.Record(ctx, event)
	}
	if eligibilityChanged && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			logging.Error(s.logger, "lot", "afterCommit", "invalidate preview", map[string]string{"lot_id": event.LotID}, err)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"module": "lot",
		"action": event.Action,
		"lot_id": event.LotID,
	}).Info("payment lot changed")
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
