package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "verigate/pkg/domain"
	audit "verigate/pkg/platform/audit"
)

var errBufferFull = errors.New("audit buffer full")

// Publisher persists audit events to a store, either inline or through a
// bounded buffer drained by a single background goroutine.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer    chan audit.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"user_id", event.UserID,
				"error", err,
			)
		}
	}
}

// Emit records the event. In async mode it never blocks: a full buffer
// returns an error and the event is dropped.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		return errBufferFull
	}
}

// List reads a user's events back when the store supports it.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	lister, ok := p.store.(audit.Lister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListByUser(ctx, userID)
}

// Close stops accepting async events and waits for the buffer to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}

// Fanout emits to several stores; the first error wins but every store is tried.
type Fanout []audit.Store

func (f Fanout) Append(ctx context.Context, event audit.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListByUser delegates to the first store that can list.
func (f Fanout) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	for _, s := range f {
		if lister, ok := s.(audit.Lister); ok {
			return lister.ListByUser(ctx, userID)
		}
	}
	return nil, errors.New("audit store does not support listing")
}
