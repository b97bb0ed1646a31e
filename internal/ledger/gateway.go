// Package ledger reserves and settles point balances around verification
// attempts and owns the supporting account operations.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"verigate/internal/ledger/models"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	audit "verigate/pkg/platform/audit"
	"verigate/pkg/platform/sentinel"
	"verigate/pkg/requestcontext"
)

// Store is the persistence contract. Every method is atomic on its own.
type Store interface {
	UpsertUser(ctx context.Context, user models.User) error
	UserExists(ctx context.Context, userID id.UserID) (bool, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	ReserveBalance(ctx context.Context, userID id.UserID, amount int) (bool, error)
	CreditBalance(ctx context.Context, userID id.UserID, amount int) (int, error)
	RefundOnce(ctx context.Context, attemptID id.AttemptID, userID id.UserID, amount int) (bool, error)
	SetBlocked(ctx context.Context, userID id.UserID, blocked bool) error
	RecordVerification(ctx context.Context, record models.VerificationRecord) error
	FindVerificationByExternalID(ctx context.Context, userID id.UserID, externalID string) (*models.VerificationRecord, error)
	ListVerifications(ctx context.Context, userID id.UserID, limit int) ([]models.VerificationRecord, error)
	ListOwedRefunds(ctx context.Context, limit int) ([]models.OwedRefund, error)
	CheckIn(ctx context.Context, userID id.UserID, day time.Time, reward int) (int, bool, error)
	ListBlocked(ctx context.Context) ([]models.User, error)
}

// AuditPublisher receives account-level audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	DefaultHistoryLimit  = 20
	DefaultCheckInReward = 1
)

type Gateway struct {
	store         Store
	auditor       AuditPublisher
	logger        *slog.Logger
	checkInReward int
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithAuditor(auditor AuditPublisher) Option {
	return func(g *Gateway) {
		g.auditor = auditor
	}
}

// WithCheckInReward sets the points credited by a daily check-in.
func WithCheckInReward(points int) Option {
	return func(g *Gateway) {
		if points > 0 {
			g.checkInReward = points
		}
	}
}

func New(store Store, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	g := &Gateway{store: store, logger: slog.Default(), checkInReward: DefaultCheckInReward}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func unavailable(err error) error {
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable")
}

// User returns the account, translating a missing row to not_found.
func (g *Gateway) User(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not registered")
		}
		return nil, unavailable(err)
	}
	return user, nil
}

// Reserve deducts cost in one conditional update. It returns false when the
// balance is short, the user is blocked, or the user is unknown.
func (g *Gateway) Reserve(ctx context.Context, userID id.UserID, cost int) (bool, error) {
	ok, err := g.store.ReserveBalance(ctx, userID, cost)
	if err != nil {
		g.logger.ErrorContext(ctx, "reserve failed",
			"user_id", userID,
			"cost", cost,
			"error", err,
		)
		return false, unavailable(err)
	}
	return ok, nil
}

// Settle finishes an attempt's accounting. A failed attempt is refunded at
// most once per attempt id, so retrying Settle is safe. Returns whether this
// call performed the refund.
func (g *Gateway) Settle(ctx context.Context, s models.Settlement) (bool, error) {
	if s.Success || s.Cost <= 0 {
		return false, nil
	}
	refunded, err := g.store.RefundOnce(ctx, s.AttemptID, s.UserID, s.Cost)
	if err != nil {
		return false, unavailable(err)
	}
	if refunded {
		g.logger.InfoContext(ctx, "attempt refunded",
			"attempt_id", s.AttemptID,
			"user_id", s.UserID,
			"amount", s.Cost,
		)
	}
	return refunded, nil
}

// SweepRefunds retries refunds that settlement could not complete, oldest
// first, up to limit. Each refund is applied at most once, so a sweep that
// races a late Settle credits nothing twice. Returns how many refunds this
// sweep applied.
func (g *Gateway) SweepRefunds(ctx context.Context, limit int) (int, error) {
	owed, err := g.store.ListOwedRefunds(ctx, limit)
	if err != nil {
		return 0, unavailable(err)
	}
	var (
		applied int
		errs    []error
	)
	for _, o := range owed {
		refunded, err := g.store.RefundOnce(ctx, o.AttemptID, o.UserID, o.Amount)
		if err != nil {
			g.logger.ErrorContext(ctx, "owed refund failed",
				"attempt_id", o.AttemptID,
				"user_id", o.UserID,
				"amount", o.Amount,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		if !refunded {
			continue
		}
		applied++
		g.logger.InfoContext(ctx, "owed refund applied",
			"attempt_id", o.AttemptID,
			"user_id", o.UserID,
			"amount", o.Amount,
		)
		g.emit(ctx, audit.Event{
			UserID:    o.UserID,
			AttemptID: o.AttemptID.String(),
			Action:    string(audit.EventVerificationRefunded),
			Decision:  "refunded",
			Reason:    "settlement_retry",
			Amount:    o.Amount,
			ActorID:   "refund_sweep",
		})
	}
	if len(errs) > 0 {
		return applied, unavailable(errors.Join(errs...))
	}
	return applied, nil
}

// RecordOutcome persists an attempt's terminal state. It is independent of
// settlement: a failed write here never undoes a refund.
func (g *Gateway) RecordOutcome(ctx context.Context, record models.VerificationRecord) error {
	if err := g.store.RecordVerification(ctx, record); err != nil {
		return unavailable(err)
	}
	return nil
}

func (g *Gateway) FindByExternalID(ctx context.Context, userID id.UserID, externalID string) (*models.VerificationRecord, error) {
	record, err := g.store.FindVerificationByExternalID(ctx, userID, externalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification not found")
		}
		return nil, unavailable(err)
	}
	return record, nil
}

func (g *Gateway) History(ctx context.Context, userID id.UserID, limit int) ([]models.VerificationRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := g.store.ListVerifications(ctx, userID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

// Register creates the user or refreshes their profile fields. Balance and
// blocked state are never touched for an existing user.
func (g *Gateway) Register(ctx context.Context, user models.User) error {
	if user.ID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if user.Balance < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "initial balance must not be negative")
	}
	if err := g.store.UpsertUser(ctx, user); err != nil {
		return unavailable(err)
	}
	return nil
}

// Credit adds points to a user's balance and returns the new balance.
func (g *Gateway) Credit(ctx context.Context, userID id.UserID, amount int) (int, error) {
	if amount <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	balance, err := g.store.CreditBalance(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "user not registered")
		}
		return 0, unavailable(err)
	}
	g.emit(ctx, audit.Event{
		UserID: userID,
		Action: string(audit.EventBalanceCredited),
		Amount: amount,
	})
	return balance, nil
}

// CheckIn credits the daily check-in reward at most once per UTC calendar
// day and returns the new balance.
func (g *Gateway) CheckIn(ctx context.Context, userID id.UserID) (int, error) {
	day := requestcontext.Now(ctx).UTC()
	balance, ok, err := g.store.CheckIn(ctx, userID, day, g.checkInReward)
	if err != nil {
		return 0, unavailable(err)
	}
	if !ok {
		user, err := g.User(ctx, userID)
		switch {
		case err != nil:
			return 0, err
		case user.Blocked:
			return 0, dErrors.New(dErrors.CodeForbidden, "user is blocked")
		default:
			return 0, dErrors.New(dErrors.CodeConflict, "already checked in today")
		}
	}
	g.emit(ctx, audit.Event{
		UserID:  userID,
		Action:  string(audit.EventDailyCheckIn),
		Amount:  g.checkInReward,
		ActorID: userID.String(),
	})
	return balance, nil
}

// CheckInReward returns the points one check-in credits.
func (g *Gateway) CheckInReward() int {
	return g.checkInReward
}

// Blocked lists every blocked user.
func (g *Gateway) Blocked(ctx context.Context) ([]models.User, error) {
	users, err := g.store.ListBlocked(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return users, nil
}

func (g *Gateway) SetBlocked(ctx context.Context, userID id.UserID, blocked bool) error {
	if err := g.store.SetBlocked(ctx, userID, blocked); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not registered")
		}
		return unavailable(err)
	}
	action := audit.EventUserUnblocked
	if blocked {
		action = audit.EventUserBlocked
	}
	g.emit(ctx, audit.Event{UserID: userID, Action: string(action)})
	return nil
}

func (g *Gateway) emit(ctx context.Context, event audit.Event) {
	if g.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if event.ActorID == "" {
		event.ActorID = "admin"
	}
	if err := g.auditor.Emit(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
