// Package service drives one verification attempt through reservation,
// admission, execution, and settlement.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"verigate/internal/admission"
	ledgermodels "verigate/internal/ledger/models"
	"verigate/internal/reward"
	"verigate/internal/verification/metrics"
	"verigate/internal/verification/models"
	"verigate/internal/verification/verifier"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	audit "verigate/pkg/platform/audit"
	"verigate/pkg/platform/backend"
	"verigate/pkg/requestcontext"
)

var tracer = otel.Tracer("verigate/verification")

// Ledger is the balance and record keeping the runner depends on.
type Ledger interface {
	User(ctx context.Context, userID id.UserID) (*ledgermodels.User, error)
	Reserve(ctx context.Context, userID id.UserID, cost int) (bool, error)
	Settle(ctx context.Context, settlement ledgermodels.Settlement) (bool, error)
	RecordOutcome(ctx context.Context, record ledgermodels.VerificationRecord) error
	FindByExternalID(ctx context.Context, userID id.UserID, externalID string) (*ledgermodels.VerificationRecord, error)
}

// VerifierSource resolves the verifier for a category.
type VerifierSource interface {
	Get(category models.Category) (verifier.Verifier, error)
}

// Gate admits a bounded number of concurrent verifier calls per category.
type Gate interface {
	Acquire(ctx context.Context, category string) (admission.Releaser, error)
}

// RewardPoller retrieves delayed reward codes.
type RewardPoller interface {
	Poll(ctx context.Context, verificationID string) reward.Result
	Lookup(ctx context.Context, verificationID string) (*reward.LookupResult, error)
}

// AuditPublisher receives attempt outcome events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AdmissionGate adapts the admission controller to Gate.
func AdmissionGate(c *admission.Controller) Gate {
	return gateFunc(func(ctx context.Context, category string) (admission.Releaser, error) {
		permit, err := c.Acquire(ctx, category)
		if err != nil {
			return nil, err
		}
		return permit, nil
	})
}

type gateFunc func(ctx context.Context, category string) (admission.Releaser, error)

func (f gateFunc) Acquire(ctx context.Context, category string) (admission.Releaser, error) {
	return f(ctx, category)
}

const DefaultCost = 5

type Runner struct {
	ledger    Ledger
	verifiers VerifierSource
	gate      Gate
	poller    RewardPoller
	auditor   AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cost      int
	now       func() time.Time
	backOff   func() backoff.BackOff
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithRewardPoller(p RewardPoller) Option {
	return func(r *Runner) {
		r.poller = p
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Runner) {
		r.auditor = p
	}
}

func WithCost(cost int) Option {
	return func(r *Runner) {
		if cost > 0 {
			r.cost = cost
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithSettleBackOff sets the retry policy for settlement.
func WithSettleBackOff(factory func() backoff.BackOff) Option {
	return func(r *Runner) {
		r.backOff = factory
	}
}

// DefaultSettleBackOff retries settlement up to three times.
func DefaultSettleBackOff(maxRetries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Millisecond
		eb.MaxElapsedTime = 5 * time.Second
		return backoff.WithMaxRetries(eb, maxRetries)
	}
}

func New(ledger Ledger, verifiers VerifierSource, gate Gate, opts ...Option) (*Runner, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if verifiers == nil {
		return nil, errors.New("verifier source is required")
	}
	if gate == nil {
		return nil, errors.New("admission gate is required")
	}
	r := &Runner{
		ledger:    ledger,
		verifiers: verifiers,
		gate:      gate,
		logger:    slog.Default(),
		cost:      DefaultCost,
		now:       time.Now,
		backOff:   DefaultSettleBackOff(3),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Cost returns the points reserved per attempt.
func (r *Runner) Cost() int {
	return r.cost
}

// Run executes one attempt. Declines before reservation return the declined
// attempt together with a coded error. Once points are reserved Run always
// settles the attempt and returns it with a nil error.
func (r *Runner) Run(ctx context.Context, req models.Request) (*models.Attempt, error) {
	ctx, span := tracer.Start(ctx, "verification.run",
		trace.WithAttributes(
			attribute.String("category", req.Category.String()),
			attribute.Int64("user_id", int64(req.UserID)),
		),
	)
	defer span.End()

	attempt := &models.Attempt{
		ID:        id.NewAttemptID(),
		UserID:    req.UserID,
		Category:  req.Category,
		Input:     req.Input,
		Cost:      r.cost,
		State:     models.StateRequested,
		CreatedAt: requestcontext.Now(ctx),
	}
	span.SetAttributes(attribute.String("attempt_id", attempt.ID.String()))

	v, err := r.verifiers.Get(req.Category)
	if err != nil {
		return r.decline(ctx, attempt, models.FailureInvalidInput, err)
	}

	user, err := r.ledger.User(ctx, req.UserID)
	switch {
	case dErrors.Is(err, dErrors.CodeNotFound):
		return r.decline(ctx, attempt, models.FailureUserNotRegistered,
			dErrors.New(dErrors.CodeNotFound, "user not registered, register first"))
	case err != nil:
		return r.decline(ctx, attempt, models.FailureStoreUnavailable, err)
	case user.Blocked:
		return r.decline(ctx, attempt, models.FailureUserBlocked,
			dErrors.New(dErrors.CodeForbidden, "user is blocked"))
	}

	identifier, err := verifier.Identifier(req.Category, req.Input)
	if err != nil {
		return r.decline(ctx, attempt, models.FailureInvalidInput, err)
	}
	attempt.Identifier = identifier

	reserved, err := r.ledger.Reserve(ctx, req.UserID, r.cost)
	if err != nil {
		return r.decline(ctx, attempt, models.FailureStoreUnavailable, err)
	}
	if !reserved {
		balance := r.balance(ctx, req.UserID)
		attempt.Balance = balance
		have := 0
		if balance != nil {
			have = *balance
		}
		r.emit(ctx, attempt, audit.EventReservationDeclined, "declined", string(models.FailureInsufficientBalance))
		return r.decline(ctx, attempt, models.FailureInsufficientBalance,
			dErrors.New(dErrors.CodeInsufficientBalance,
				fmt.Sprintf("insufficient balance: have %d points, need %d", have, r.cost)))
	}
	attempt.Advance(models.StateReserved)

	waitStart := r.now()
	permit, err := r.gate.Acquire(ctx, req.Category.String())
	if err != nil {
		r.logger.WarnContext(ctx, "admission wait abandoned",
			"attempt_id", attempt.ID,
			"category", req.Category,
			"waited", r.now().Sub(waitStart),
			"error", err,
		)
		attempt.Detail = "verification cancelled before it started"
		attempt.Settle(models.OutcomeErrored, models.FailureCancelled, r.now())
		return r.finish(ctx, attempt), nil
	}
	attempt.Advance(models.StateAdmitted)

	attempt.Advance(models.StateExecuting)
	started := r.now()
	result, verr := r.invoke(ctx, permit, v, identifier)
	r.metrics.ObserveVerifyLatency(req.Category.String(), r.now().Sub(started))

	switch {
	case verr != nil:
		r.logger.ErrorContext(ctx, "verifier raised",
			"attempt_id", attempt.ID,
			"category", req.Category,
			"backend_category", backend.CategoryOf(verr),
			"error", verr,
		)
		span.RecordError(verr)
		attempt.Detail = fmt.Sprintf("verification failed, %d points refunded", r.cost)
		attempt.Settle(models.OutcomeErrored, models.FailureVerifierException, r.now())
	case !result.Success:
		r.logger.WarnContext(ctx, "verification failed",
			"attempt_id", attempt.ID,
			"category", req.Category,
			"message", result.Message,
		)
		attempt.Detail = result.Message
		attempt.RedirectURL = result.RedirectURL
		attempt.ExternalVerificationID = result.VerificationID
		attempt.Settle(models.OutcomeRefunded, models.FailureVerifierFailure, r.now())
	default:
		attempt.Detail = result.Message
		attempt.RedirectURL = result.RedirectURL
		attempt.ExternalVerificationID = result.VerificationID
		attempt.Pending = result.Pending
		attempt.RewardCode = result.RewardCode
		attempt.Settle(models.OutcomeSuccess, models.FailureNone, r.now())
	}

	attempt = r.finish(ctx, attempt)
	if attempt.Succeeded() && req.Category.DelayedCode() &&
		attempt.RewardCode == "" && attempt.ExternalVerificationID != "" {
		r.awaitReward(ctx, attempt)
	}
	return attempt, nil
}

// invoke calls the verifier and releases the permit as soon as the call
// returns, including when it panics.
func (r *Runner) invoke(ctx context.Context, permit admission.Releaser, v verifier.Verifier, identifier string) (result *models.VerifyResult, err error) {
	defer permit.Release()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("verifier panic: %v", rec)
		}
	}()
	result, err = v.Verify(ctx, identifier)
	if err == nil && result == nil {
		err = errors.New("verifier returned no result")
	}
	return result, err
}

// finish settles, records, and reports a terminal attempt.
func (r *Runner) finish(ctx context.Context, attempt *models.Attempt) *models.Attempt {
	attempt.Refunded, attempt.RefundOwed = r.settle(ctx, attempt)
	r.record(ctx, attempt)

	r.metrics.IncrementOutcome(attempt.Category.String(), string(attempt.Outcome))
	r.emit(ctx, attempt, audit.EventVerificationSettled, string(attempt.Outcome), string(attempt.Failure))
	if attempt.Refunded {
		r.metrics.IncrementRefunds()
		r.emit(ctx, attempt, audit.EventVerificationRefunded, string(attempt.Outcome), string(attempt.Failure))
	}
	attempt.Balance = r.balance(ctx, attempt.UserID)

	r.logger.InfoContext(ctx, "verification settled",
		"attempt_id", attempt.ID,
		"user_id", attempt.UserID,
		"category", attempt.Category,
		"outcome", attempt.Outcome,
		"failure", attempt.Failure,
		"refunded", attempt.Refunded,
	)
	return attempt
}

// settle refunds a failed attempt. It runs detached from the caller's
// cancellation and retries only while the store is unavailable. When the
// retries run out the refund is reported as owed.
func (r *Runner) settle(ctx context.Context, attempt *models.Attempt) (refunded, owed bool) {
	ctx = context.WithoutCancel(ctx)
	settlement := ledgermodels.Settlement{
		AttemptID: attempt.ID,
		UserID:    attempt.UserID,
		Cost:      attempt.Cost,
		Success:   attempt.Outcome == models.OutcomeSuccess,
	}
	refunded, err := backoff.RetryWithData(func() (bool, error) {
		ok, err := r.ledger.Settle(ctx, settlement)
		if err != nil && !dErrors.Is(err, dErrors.CodeUnavailable) {
			return false, backoff.Permanent(err)
		}
		return ok, err
	}, r.backOff())
	if err != nil {
		r.logger.ErrorContext(ctx, "settlement failed",
			"attempt_id", attempt.ID,
			"user_id", attempt.UserID,
			"amount", attempt.Cost,
			"error", err,
		)
		return false, !settlement.Success && settlement.Cost > 0
	}
	return refunded, false
}

func (r *Runner) record(ctx context.Context, attempt *models.Attempt) {
	ctx = context.WithoutCancel(ctx)
	record := ledgermodels.VerificationRecord{
		AttemptID:  attempt.ID,
		UserID:     attempt.UserID,
		Category:   attempt.Category.String(),
		Input:      attempt.Input,
		Status:     recordStatus(attempt),
		Detail:     recordDetail(attempt),
		ExternalID: attempt.ExternalVerificationID,
		CreatedAt:  attempt.CreatedAt,
	}
	if attempt.RefundOwed {
		record.RefundOwed = attempt.Cost
	}
	if err := r.ledger.RecordOutcome(ctx, record); err != nil {
		r.logger.ErrorContext(ctx, "failed to record verification outcome",
			"attempt_id", attempt.ID,
			"status", record.Status,
			"error", err,
		)
	}
}

// recordStatus maps an attempt to its history status. Only delayed-code
// categories record pending; other pending verifiers count as success.
func recordStatus(attempt *models.Attempt) ledgermodels.RecordStatus {
	switch {
	case !attempt.Succeeded():
		return ledgermodels.StatusFailed
	case attempt.RewardPending,
		attempt.Pending && attempt.RewardCode == "" && attempt.Category.DelayedCode():
		return ledgermodels.StatusPending
	default:
		return ledgermodels.StatusSuccess
	}
}

func recordDetail(attempt *models.Attempt) string {
	if attempt.RewardCode != "" {
		return "Code: " + attempt.RewardCode
	}
	if attempt.Detail != "" {
		return attempt.Detail
	}
	return attempt.RedirectURL
}

// awaitReward polls for a delayed reward code. A timeout never refunds.
func (r *Runner) awaitReward(ctx context.Context, attempt *models.Attempt) {
	if r.poller == nil {
		attempt.RewardPending = true
		r.record(ctx, attempt)
		return
	}
	res := r.poller.Poll(ctx, attempt.ExternalVerificationID)
	r.metrics.IncrementRewardPoll(string(res.State), string(res.Reason))

	if res.State == reward.StateCodeReady {
		attempt.RewardCode = res.Code
		attempt.RewardPending = false
		r.record(ctx, attempt)
		r.emit(ctx, attempt, audit.EventRewardCodeReady, string(res.State), "")
		return
	}

	attempt.RewardPending = true
	attempt.Failure = models.FailurePollTimeout
	if res.Reason == reward.ReasonRemoteError {
		attempt.Failure = models.FailureRemoteStatusError
	}
	r.logger.InfoContext(ctx, "reward code not ready",
		"attempt_id", attempt.ID,
		"verification_id", attempt.ExternalVerificationID,
		"reason", res.Reason,
		"polls", res.Polls,
		"elapsed", res.Elapsed,
	)
	r.record(ctx, attempt)
	r.emit(ctx, attempt, audit.EventRewardCodePending, string(res.State), string(res.Reason))
}

func (r *Runner) decline(ctx context.Context, attempt *models.Attempt, kind models.FailureKind, err error) (*models.Attempt, error) {
	attempt.Decline(kind, dErrors.MessageOf(err))
	r.metrics.IncrementDecline(attempt.Category.String(), string(kind))
	level := slog.LevelInfo
	if kind == models.FailureStoreUnavailable {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "verification declined",
		"attempt_id", attempt.ID,
		"user_id", attempt.UserID,
		"category", attempt.Category,
		"reason", kind,
		"error", err,
	)
	return attempt, err
}

func (r *Runner) balance(ctx context.Context, userID id.UserID) *int {
	user, err := r.ledger.User(context.WithoutCancel(ctx), userID)
	if err != nil {
		return nil
	}
	b := user.Balance
	return &b
}

func (r *Runner) emit(ctx context.Context, attempt *models.Attempt, action audit.AuditEvent, decision, reason string) {
	if r.auditor == nil {
		return
	}
	amount := 0
	switch action {
	case audit.EventVerificationRefunded, audit.EventReservationDeclined:
		amount = attempt.Cost
	}
	err := r.auditor.Emit(context.WithoutCancel(ctx), audit.Event{
		UserID:    attempt.UserID,
		AttemptID: attempt.ID.String(),
		Subject:   attempt.Category.String(),
		Action:    string(action),
		Decision:  decision,
		Reason:    reason,
		Amount:    amount,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   attempt.UserID.String(),
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event",
			"action", action,
			"attempt_id", attempt.ID,
			"error", err,
		)
	}
}

// RewardLookup is the answer to a later reward re-check.
type RewardLookup struct {
	VerificationID string
	Status         reward.LookupStatus
	Code           string
	Step           string
	ErrorIDs       []string
	Cached         bool
}

// LookupReward re-checks the reward code for one of the user's own
// verifications. A code found here upgrades a pending record to success.
func (r *Runner) LookupReward(ctx context.Context, userID id.UserID, verificationID string) (*RewardLookup, error) {
	ctx, span := tracer.Start(ctx, "verification.lookup_reward")
	defer span.End()

	vid := verifier.ParseVerificationID(verificationID)
	if vid == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid verification id")
	}
	if r.poller == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "reward lookup is not configured")
	}
	record, err := r.ledger.FindByExternalID(ctx, userID, vid)
	if err != nil {
		return nil, err
	}

	res, err := r.poller.Lookup(ctx, vid)
	if err != nil {
		r.logger.WarnContext(ctx, "reward lookup failed",
			"verification_id", vid,
			"category", backend.CategoryOf(err),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "reward status unavailable")
	}

	if res.Status == reward.LookupReady && record.Status != ledgermodels.StatusSuccess {
		record.Status = ledgermodels.StatusSuccess
		record.Detail = "Code: " + res.Code
		if err := r.ledger.RecordOutcome(ctx, *record); err != nil {
			r.logger.ErrorContext(ctx, "failed to upgrade pending record",
				"attempt_id", record.AttemptID,
				"error", err,
			)
		}
	}

	return &RewardLookup{
		VerificationID: vid,
		Status:         res.Status,
		Code:           res.Code,
		Step:           res.Step,
		ErrorIDs:       res.ErrorIDs,
		Cached:         res.Cached,
	}, nil
}
