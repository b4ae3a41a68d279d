package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inspectpay/logging"
)

// Publisher hands events to a background worker through a bounded buffer.
// Record never blocks and never fails the caller: when the buffer is full the
// event is dropped and reported through the drop hook.
type Publisher struct {
	store  Store
	inbox  chan Event
	logger logrus.FieldLogger
	onDrop func()
	now    func() time.Time
	done   chan struct{}
}

func NewPublisher(store Store, buffer int, logger logrus.FieldLogger) *Publisher {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{
		store:  store,
		inbox:  make(chan Event, buffer),
		logger: logger,
		onDrop: func() {},
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// WithDropHook registers fn to run for every dropped event.
func (p *Publisher) WithDropHook(fn func()) *Publisher {
	if fn != nil {
		p.onDrop = fn
	}
	return p
}

func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// Record enqueues the event, filling in the id and timestamp when missing.
func (p *Publisher) Record(_ context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	select {
	case p.inbox <- event:
	default:
		p.onDrop()
		p.logger.WithFields(logrus.Fields{
			"module": "audit",
			"action": event.Action,
			"lot_id": event.LotID,
		}).Warn("audit buffer full, event dropped")
	}
}

// Run persists events until ctx is cancelled, then flushes what is buffered.
func (p *Publisher) Run(ctx context.Context) error {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case event := <-p.inbox:
			p.append(ctx, event)
		}
	}
}

// Done is closed once Run has returned.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-p.inbox:
			p.append(ctx, event)
		default:
			return
		}
	}
}

func (p *Publisher) append(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		logging.Error(p.logger, "audit", "Append", "persist event", map[string]string{
			"event_id": event.ID,
			"action":   event.Action,
		}, err)
	}
}
