// Package handler exposes the admission budget to operators.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verigate/internal/admission"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Controller is the admission state the handler reads and overrides.
type Controller interface {
	Snapshot() admission.Snapshot
	SetBudget(budget int) int
}

// MonitorStatus reports whether automatic budget tuning is active.
type MonitorStatus interface {
	Running() bool
}

type Handler struct {
	logger     *slog.Logger
	controller Controller
	monitor    MonitorStatus
}

func New(controller Controller, monitor MonitorStatus, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, controller: controller, monitor: monitor}
}

// RegisterAdminRoutes mounts the operator routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/admin/concurrency", h.handleSnapshot)
	r.Put("/admin/concurrency/budget", h.handleSetBudget)
}

type snapshotResponse struct {
	admission.Snapshot
	MonitorRunning bool `json:"monitor_running"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	resp := snapshotResponse{Snapshot: h.controller.Snapshot()}
	if h.monitor != nil {
		resp.MonitorRunning = h.monitor.Running()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type setBudgetRequest struct {
	Budget int `json:"budget"`
}

// handleSetBudget overrides the budget until the next monitor tick adjusts it.
func (h *Handler) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[setBudgetRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Budget <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "budget must be positive"))
		return
	}
	stored := h.controller.SetBudget(req.Budget)
	h.logger.InfoContext(ctx, "budget overridden by operator",
		"request_id", requestcontext.RequestID(ctx),
		"requested", req.Budget,
		"budget", stored,
	)
	h.handleSnapshot(w, r)
}
