// Package handler exposes verification attempts over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	ledgermodels "verigate/internal/ledger/models"
	"verigate/internal/verification/models"
	"verigate/internal/verification/service"
	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Runner executes attempts and re-checks delayed reward codes.
type Runner interface {
	Run(ctx context.Context, req models.Request) (*models.Attempt, error)
	LookupReward(ctx context.Context, userID id.UserID, verificationID string) (*service.RewardLookup, error)
}

// HistorySource lists a user's recorded verifications.
type HistorySource interface {
	History(ctx context.Context, userID id.UserID, limit int) ([]ledgermodels.VerificationRecord, error)
}

const maxHistoryLimit = 100

type Handler struct {
	logger  *slog.Logger
	runner  Runner
	history HistorySource
}

func New(runner Runner, history HistorySource, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		runner:  runner,
		history: history,
	}
}

// Register mounts the routes. Callers are expected to apply authentication;
// attempt middleware wraps only the route that spends points.
func (h *Handler) Register(r chi.Router, attempt ...func(http.Handler) http.Handler) {
	r.With(attempt...).Post("/v1/verifications", h.handleRun)
	r.Get("/v1/verifications/{verificationID}/reward", h.handleRewardLookup)
	r.Get("/v1/me/verifications", h.handleHistory)
}

type runRequest struct {
	Category string `json:"category"`
	URL      string `json:"url"`
}

type attemptResponse struct {
	AttemptID      string `json:"attempt_id"`
	Category       string `json:"category"`
	State          string `json:"state"`
	Outcome        string `json:"outcome,omitempty"`
	Failure        string `json:"failure,omitempty"`
	Detail         string `json:"detail,omitempty"`
	Refunded       bool   `json:"refunded"`
	RefundedAmount int    `json:"refunded_amount,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	Pending        bool   `json:"pending,omitempty"`
	VerificationID string `json:"verification_id,omitempty"`
	RewardCode     string `json:"reward_code,omitempty"`
	RewardPending  bool   `json:"reward_pending,omitempty"`
	Balance        *int   `json:"balance,omitempty"`
}

func toAttemptResponse(a *models.Attempt) attemptResponse {
	resp := attemptResponse{
		AttemptID:      a.ID.String(),
		Category:       a.Category.String(),
		State:          string(a.State),
		Outcome:        string(a.Outcome),
		Failure:        string(a.Failure),
		Detail:         a.Detail,
		Refunded:       a.Refunded,
		RedirectURL:    a.RedirectURL,
		Pending:        a.Pending,
		VerificationID: a.ExternalVerificationID,
		RewardCode:     a.RewardCode,
		RewardPending:  a.RewardPending,
		Balance:        a.Balance,
	}
	if a.Refunded {
		resp.RefundedAmount = a.Cost
	}
	return resp
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, err := httputil.DecodeJSON[runRequest](r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid verification request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	category := models.Category(req.Category)
	if !category.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unsupported category"))
		return
	}

	attempt, err := h.runner.Run(ctx, models.Request{
		UserID:   userID,
		Category: category,
		Input:    req.URL,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

type rewardResponse struct {
	VerificationID string   `json:"verification_id"`
	Status         string   `json:"status"`
	Code           string   `json:"code,omitempty"`
	Step           string   `json:"step,omitempty"`
	ErrorIDs       []string `json:"error_ids,omitempty"`
	Cached         bool     `json:"cached"`
}

func (h *Handler) handleRewardLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	res, err := h.runner.LookupReward(ctx, userID, chi.URLParam(r, "verificationID"))
	if err != nil {
		h.logger.InfoContext(ctx, "reward lookup rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rewardResponse{
		VerificationID: res.VerificationID,
		Status:         string(res.Status),
		Code:           res.Code,
		Step:           res.Step,
		ErrorIDs:       res.ErrorIDs,
		Cached:         res.Cached,
	})
}

type historyItem struct {
	AttemptID      string    `json:"attempt_id"`
	Category       string    `json:"category"`
	Status         string    `json:"status"`
	Detail         string    `json:"detail,omitempty"`
	VerificationID string    `json:"verification_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type historyResponse struct {
	Verifications []historyItem `json:"verifications"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	records, err := h.history.History(ctx, userID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list verifications",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := historyResponse{Verifications: make([]historyItem, 0, len(records))}
	for _, rec := range records {
		resp.Verifications = append(resp.Verifications, historyItem{
			AttemptID:      rec.AttemptID.String(),
			Category:       rec.Category,
			Status:         string(rec.Status),
			Detail:         rec.Detail,
			VerificationID: rec.ExternalID,
			CreatedAt:      rec.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
