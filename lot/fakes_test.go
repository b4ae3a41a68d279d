package lot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"inspectpay/audit"
	"inspectpay/inspection"
)

type fakeDB struct {
	txs       []*fakeTx
	opts      []pgx.TxOptions
	beginErr  error
	commitErr error
}

func (f *fakeDB) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	tx := &fakeTx{commitErr: f.commitErr}
	f.txs = append(f.txs, tx)
	f.opts = append(f.opts, opts)
	return tx, nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeDB) lastTx() *fakeTx {
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

type fakeTx struct {
	rolled    bool
	committed bool
	commitErr error
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

type fakeEligible struct {
	items      []inspection.Inspection
	err        error
	locked     bool
	lastFilter inspection.EligibilityFilter
}

func (f *fakeEligible) ListEligible(_ context.Context, _ inspection.Querier, filter inspection.EligibilityFilter) ([]inspection.Inspection, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeEligible) LockEligible(_ context.Context, _ pgx.Tx, filter inspection.EligibilityFilter) ([]inspection.Inspection, error) {
	f.locked = true
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// fakeRepo keeps lots and links in memory. Writes are applied immediately,
// so tests check commit/rollback on the fake transaction instead.
type fakeRepo struct {
	lots  map[string]Lot
	links map[string][]Link

	insertLotErr   error
	insertLinksErr error
	markPaidErr    error

	summaryArgs [4]*time.Time
	listFilter  ListFilter
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{lots: map[string]Lot{}, links: map[string][]Link{}}
}

func (f *fakeRepo) InsertLot(_ context.Context, _ pgx.Tx, l Lot) (Lot, error) {
	if f.insertLotErr != nil {
		return Lot{}, f.insertLotErr
	}
	l.Status = StatusPending
	f.lots[l.ID] = l
	return l, nil
}

func (f *fakeRepo) InsertLinks(_ context.Context, _ pgx.Tx, links []Link) error {
	if f.insertLinksErr != nil {
		return f.insertLinksErr
	}
	for _, link := range links {
		f.links[link.LotID] = append(f.links[link.LotID], link)
	}
	return nil
}

func (f *fakeRepo) LockLot(_ context.Context, _ pgx.Tx, id string) (Lot, error) {
	l, ok := f.lots[id]
	if !ok {
		return Lot{}, ErrLotNotFound
	}
	return l, nil
}

func (f *fakeRepo) MarkPaid(_ context.Context, _ pgx.Tx, params MarkPaidParams, paidAt time.Time) (Lot, error) {
	if f.markPaidErr != nil {
		return Lot{}, f.markPaidErr
	}
	l := f.lots[params.LotID]
	l.Status = StatusPaid
	l.PaymentDate = &paidAt
	method := params.PaymentMethod
	l.PaymentMethod = &method
	actor := params.ActorID
	l.PaidByUserID = &actor
	f.lots[l.ID] = l
	return l, nil
}

func (f *fakeRepo) Cancel(_ context.Context, _ pgx.Tx, params CancelParams, cancelledAt time.Time) (Lot, error) {
	l := f.lots[params.LotID]
	l.Status = StatusCancelled
	l.CancelledAt = &cancelledAt
	f.lots[l.ID] = l
	return l, nil
}

func (f *fakeRepo) DeleteLinks(_ context.Context, _ pgx.Tx, lotID string) (int64, error) {
	n := len(f.links[lotID])
	delete(f.links, lotID)
	return int64(n), nil
}

func (f *fakeRepo) DeleteLot(_ context.Context, _ pgx.Tx, id string) error {
	if _, ok := f.lots[id]; !ok {
		return ErrLotNotFound
	}
	delete(f.lots, id)
	return nil
}

func (f *fakeRepo) Get(_ context.Context, _ inspection.Querier, id string) (Lot, error) {
	l, ok := f.lots[id]
	if !ok {
		return Lot{}, ErrLotNotFound
	}
	return l, nil
}

func (f *fakeRepo) Items(_ context.Context, _ inspection.Querier, lotID string) ([]Item, error) {
	items := []Item{}
	for _, link := range f.links[lotID] {
		items = append(items, Item{InspectionID: link.InspectionID, ValueAtInclusion: link.ValueAtInclusion})
	}
	return items, nil
}

func (f *fakeRepo) List(_ context.Context, _ inspection.Querier, filter ListFilter) ([]Lot, int, error) {
	f.listFilter = filter
	out := []Lot{}
	for _, l := range f.lots {
		out = append(out, l)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Summarize(_ context.Context, _ inspection.Querier, start, end, paidFrom, paidUntil *time.Time) (Summary, error) {
	f.summaryArgs = [4]*time.Time{start, end, paidFrom, paidUntil}
	return Summary{}, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeAudit) Record(_ context.Context, e audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return f.err
}
