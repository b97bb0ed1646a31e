// Package handler exposes balances and the operator account endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"verigate/internal/ledger/models"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	audit "verigate/pkg/platform/audit"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Service defines the ledger operations behind the account routes.
type Service interface {
	User(ctx context.Context, userID id.UserID) (*models.User, error)
	Register(ctx context.Context, user models.User) error
	Credit(ctx context.Context, userID id.UserID, amount int) (int, error)
	SetBlocked(ctx context.Context, userID id.UserID, blocked bool) error
	CheckIn(ctx context.Context, userID id.UserID) (int, error)
	Blocked(ctx context.Context) ([]models.User, error)
}

// AuditLister reads a user's audit trail back.
type AuditLister interface {
	List(ctx context.Context, userID id.UserID) ([]audit.Event, error)
}

type Handler struct {
	logger *slog.Logger
	ledger Service
	audit  AuditLister
}

func New(ledger Service, auditLister AuditLister, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, ledger: ledger, audit: auditLister}
}

// RegisterUserRoutes mounts the routes for authenticated users.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Get("/v1/me/balance", h.handleBalance)
	r.Post("/v1/me/checkin", h.handleCheckIn)
}

// RegisterAdminRoutes mounts the operator routes. Callers apply the admin
// token middleware.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/admin/users/blocked", h.handleBlocked)
	r.Put("/admin/users/{userID}", h.handleUpsertUser)
	r.Post("/admin/users/{userID}/balance", h.handleCredit)
	r.Post("/admin/users/{userID}/block", h.handleBlock(true))
	r.Post("/admin/users/{userID}/unblock", h.handleBlock(false))
	r.Get("/admin/users/{userID}/audit", h.handleAudit)
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
	Blocked bool   `json:"blocked,omitempty"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	user, err := h.ledger.User(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{
		UserID:  user.ID.String(),
		Balance: user.Balance,
		Blocked: user.Blocked,
	})
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	balance, err := h.ledger.CheckIn(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "daily check-in",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"balance", balance,
	)
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{UserID: userID.String(), Balance: balance})
}

type blockedUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

type blockedResponse struct {
	Users []blockedUser `json:"users"`
}

func (h *Handler) handleBlocked(w http.ResponseWriter, r *http.Request) {
	users, err := h.ledger.Blocked(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := blockedResponse{Users: make([]blockedUser, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, blockedUser{UserID: u.ID.String(), Username: u.Username, FullName: u.FullName})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type upsertUserRequest struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	InitialBalance int    `json:"initial_balance"`
}

func (h *Handler) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.DecodeJSON[upsertUserRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.ledger.Register(ctx, models.User{
		ID:       userID,
		Username: req.Username,
		FullName: req.FullName,
		Balance:  req.InitialBalance,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to register user",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.writeBalance(w, r, userID)
}

type creditRequest struct {
	Amount int `json:"amount"`
}

func (h *Handler) handleCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.DecodeJSON[creditRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	balance, err := h.ledger.Credit(ctx, userID, req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "balance credited",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"amount", req.Amount,
		"balance", balance,
	)
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{UserID: userID.String(), Balance: balance})
}

func (h *Handler) handleBlock(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := h.ledger.SetBlocked(ctx, userID, blocked); err != nil {
			httputil.WriteError(w, err)
			return
		}
		h.logger.InfoContext(ctx, "user block state changed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"blocked", blocked,
		)
		h.writeBalance(w, r, userID)
	}
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, userID id.UserID) {
	user, err := h.ledger.User(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{
		UserID:  user.ID.String(),
		Balance: user.Balance,
		Blocked: user.Blocked,
	})
}

type auditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	AttemptID string    `json:"attempt_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Amount    int       `json:"amount,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
}

type auditResponse struct {
	Events []auditEntry `json:"events"`
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.audit == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "audit trail is not configured"))
		return
	}
	events, err := h.audit.List(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit trail unavailable"))
		return
	}
	resp := auditResponse{Events: make([]auditEntry, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, auditEntry{
			Timestamp: e.Timestamp,
			Category:  string(e.Category),
			Action:    e.Action,
			AttemptID: e.AttemptID,
			Subject:   e.Subject,
			Decision:  e.Decision,
			Reason:    e.Reason,
			Amount:    e.Amount,
			ActorID:   e.ActorID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
