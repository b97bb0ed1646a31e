// Package reward retrieves asynchronously issued reward codes by polling a
// remote status endpoint for a bounded time.
package reward

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("verigate/reward")

const (
	DefaultInterval = 5 * time.Second
	DefaultMaxWait  = 20 * time.Second
)

// State is the terminal state of one polling run.
type State string

const (
	StateCodeReady State = "code_ready"
	StateTimedOut  State = "timed_out"
)

// TimeoutReason explains a TimedOut result.
type TimeoutReason string

const (
	ReasonMaxWait     TimeoutReason = "max_wait"
	ReasonRemoteError TimeoutReason = "remote_error"
	ReasonCancelled   TimeoutReason = "cancelled"
)

// Result is the outcome of Poll.
type Result struct {
	State    State
	Code     string
	Reason   TimeoutReason
	ErrorIDs []string
	Polls    int
	Elapsed  time.Duration
}

// CodeCache remembers codes once seen.
type CodeCache interface {
	Get(ctx context.Context, verificationID string) (string, bool, error)
	Set(ctx context.Context, verificationID, code string) error
}

// Poller runs the bounded polling loop. It never holds an admission permit.
type Poller struct {
	client   StatusFetcher
	cache    CodeCache
	interval time.Duration
	maxWait  time.Duration
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

func WithCache(cache CodeCache) Option {
	return func(p *Poller) {
		p.cache = cache
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxWait(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.maxWait = d
		}
	}
}

// WithClock replaces the time source, for deterministic tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(p *Poller) {
		p.now = now
		p.after = after
	}
}

func NewPoller(client StatusFetcher, opts ...Option) (*Poller, error) {
	if client == nil {
		return nil, errors.New("status client is required")
	}
	p := &Poller{
		client:   client,
		interval: DefaultInterval,
		maxWait:  DefaultMaxWait,
		logger:   slog.Default(),
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Poll checks the remote status every interval until a code appears, the
// remote reports an error, or maxWait elapses. ctx can end the wait early but
// never extend it. Each status fetch is cut off at maxWait plus one interval,
// and a code that only arrives after maxWait is cached for Lookup but not
// reported.
func (p *Poller) Poll(ctx context.Context, verificationID string) Result {
	ctx, span := tracer.Start(ctx, "reward.poll")
	defer span.End()
	span.SetAttributes(attribute.String("verification_id", verificationID))

	start := p.now()
	hardStop := start.Add(p.maxWait + p.interval)
	res := Result{}
	finish := func(state State, reason TimeoutReason) Result {
		res.State = state
		res.Reason = reason
		res.Elapsed = p.now().Sub(start)
		span.SetAttributes(
			attribute.String("state", string(state)),
			attribute.Int("polls", res.Polls),
		)
		return res
	}
	timedOut := func() Result {
		p.logger.InfoContext(ctx, "reward code not ready before max wait",
			"verification_id", verificationID,
			"polls", res.Polls,
		)
		return finish(StateTimedOut, ReasonMaxWait)
	}

	for {
		if p.now().Sub(start) >= p.maxWait {
			return timedOut()
		}

		res.Polls++
		status, err := p.fetch(ctx, verificationID, hardStop)
		if ctx.Err() != nil {
			return finish(StateTimedOut, ReasonCancelled)
		}
		late := p.now().Sub(start) >= p.maxWait
		switch {
		case err != nil:
			p.logger.DebugContext(ctx, "reward status check failed",
				"verification_id", verificationID,
				"error", err,
			)
		case status.CurrentStep == StepSuccess && status.Code() != "":
			p.remember(ctx, verificationID, status.Code())
			if late {
				return timedOut()
			}
			res.Code = status.Code()
			p.logger.InfoContext(ctx, "reward code retrieved",
				"verification_id", verificationID,
				"polls", res.Polls,
			)
			return finish(StateCodeReady, "")
		case status.CurrentStep == StepError:
			res.ErrorIDs = status.ErrorIDs
			p.logger.WarnContext(ctx, "remote audit failed",
				"verification_id", verificationID,
				"error_ids", status.ErrorIDs,
			)
			return finish(StateTimedOut, ReasonRemoteError)
		}

		remaining := p.maxWait - p.now().Sub(start)
		if remaining <= 0 {
			return timedOut()
		}
		select {
		case <-ctx.Done():
			return finish(StateTimedOut, ReasonCancelled)
		case <-p.after(min(p.interval, remaining)):
		}
	}
}

// fetch runs one status check bounded by hardStop on the poller's clock.
func (p *Poller) fetch(ctx context.Context, verificationID string, hardStop time.Time) (*Status, error) {
	left := hardStop.Sub(p.now())
	if left <= 0 {
		return nil, context.DeadlineExceeded
	}
	fctx, cancel := context.WithTimeout(ctx, left)
	defer cancel()
	return p.client.FetchStatus(fctx, verificationID)
}

func (p *Poller) remember(ctx context.Context, verificationID, code string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, verificationID, code); err != nil {
		p.logger.WarnContext(ctx, "failed to cache reward code",
			"verification_id", verificationID,
			"error", err,
		)
	}
}

// LookupStatus is the state reported by a single Lookup.
type LookupStatus string

const (
	LookupReady   LookupStatus = "ready"
	LookupPending LookupStatus = "pending"
	LookupFailed  LookupStatus = "failed"
)

type LookupResult struct {
	Status   LookupStatus
	Code     string
	Step     string
	ErrorIDs []string
	Cached   bool
}

// Lookup is a stateless single check for later re-checks. A cached code
// short-circuits the remote call.
func (p *Poller) Lookup(ctx context.Context, verificationID string) (*LookupResult, error) {
	ctx, span := tracer.Start(ctx, "reward.lookup")
	defer span.End()

	if p.cache != nil {
		code, ok, err := p.cache.Get(ctx, verificationID)
		if err != nil {
			p.logger.WarnContext(ctx, "reward cache read failed",
				"verification_id", verificationID,
				"error", err,
			)
		} else if ok {
			return &LookupResult{Status: LookupReady, Code: code, Step: StepSuccess, Cached: true}, nil
		}
	}

	status, err := p.client.FetchStatus(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	res := &LookupResult{Status: LookupPending, Step: status.CurrentStep}
	switch {
	case status.CurrentStep == StepSuccess && status.Code() != "":
		res.Status = LookupReady
		res.Code = status.Code()
		p.remember(ctx, verificationID, res.Code)
	case status.CurrentStep == StepError:
		res.Status = LookupFailed
		res.ErrorIDs = status.ErrorIDs
	}
	return res, nil
}
