package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	admissionhandler "verigate/internal/admission/handler"
	ledgerhandler "verigate/internal/ledger/handler"
	ratelimitmw "verigate/internal/ratelimit/middleware"
	verificationhandler "verigate/internal/verification/handler"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/platform/middleware/admin"
	"verigate/pkg/platform/middleware/auth"
	"verigate/pkg/platform/middleware/request"
	"verigate/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

type routerDeps struct {
	logger     *slog.Logger
	adminToken string
	jwt        auth.JWTValidator
	runner     verificationhandler.Runner
	throttle   *ratelimitmw.Middleware
	ledger     interface {
		ledgerhandler.Service
		verificationhandler.HistorySource
	}
	audit      ledgerhandler.AuditLister
	controller admissionhandler.Controller
	monitor    admissionhandler.MonitorStatus
	health     func(ctx context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(d.logger))
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if d.health != nil {
			if err := d.health(ctx); err != nil {
				d.logger.WarnContext(ctx, "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	verifications := verificationhandler.New(d.runner, d.ledger, d.logger)
	accounts := ledgerhandler.New(d.ledger, d.audit, d.logger)
	concurrency := admissionhandler.New(d.controller, d.monitor, d.logger)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.jwt, d.logger))
		var attempt []func(http.Handler) http.Handler
		if d.throttle != nil {
			attempt = append(attempt, d.throttle.PerUser)
		}
		verifications.Register(r, attempt...)
		accounts.RegisterUserRoutes(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.adminToken, d.logger))
		accounts.RegisterAdminRoutes(r)
		concurrency.RegisterAdminRoutes(r)
	})
	return r
}
