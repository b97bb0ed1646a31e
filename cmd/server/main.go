package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"verigate/internal/admission"
	"verigate/internal/capacity"
	"verigate/internal/ledger"
	"verigate/internal/loadmonitor"
	"verigate/internal/platform/config"
	"verigate/internal/platform/httpserver"
	jwttoken "verigate/internal/platform/jwt"
	"verigate/internal/platform/logger"
	"verigate/internal/platform/metrics"
	"verigate/internal/platform/tracing"
	ratelimitmw "verigate/internal/ratelimit/middleware"
	"verigate/internal/reward"
	verificationmetrics "verigate/internal/verification/metrics"
	"verigate/internal/verification/service"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("verigate stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	gateway, err := ledger.New(infra.ledgerStore,
		ledger.WithLogger(log),
		ledger.WithAuditor(infra.audit),
		ledger.WithCheckInReward(cfg.Verification.CheckInReward),
	)
	if err != nil {
		return err
	}

	sweeper, err := ledger.NewRefundSweeper(gateway,
		ledger.WithSweeperLogger(log),
		ledger.WithSweepInterval(cfg.Verification.RefundSweepInterval),
	)
	if err != nil {
		return err
	}

	platformMetrics := metrics.New()
	budget := capacity.New(capacity.WithLogger(log)).Estimate(ctx)
	controller := admission.New(budget,
		admission.WithLogger(log),
		admission.WithMetrics(platformMetrics),
		admission.WithSizing(admission.Sizing{
			HeavyFraction: cfg.Admission.HeavyFraction,
			LightFraction: cfg.Admission.LightFraction,
			HeavyMin:      cfg.Admission.HeavyMin,
			LightMin:      cfg.Admission.LightMin,
		}),
	)
	monitor, err := loadmonitor.New(controller,
		loadmonitor.WithLogger(log),
		loadmonitor.WithMetrics(platformMetrics),
		loadmonitor.WithInterval(cfg.Monitor.Interval),
		loadmonitor.WithSampler(loadmonitor.SystemSampler{Window: cfg.Monitor.SampleDuration}),
		loadmonitor.WithPolicy(loadmonitor.Policy{
			HighCPU:   cfg.Monitor.HighCPU,
			HighMem:   cfg.Monitor.HighMem,
			LowCPU:    cfg.Monitor.LowCPU,
			LowMem:    cfg.Monitor.LowMem,
			ScaleDown: cfg.Monitor.ScaleDown,
			ScaleUp:   cfg.Monitor.ScaleUp,
		}),
	)
	if err != nil {
		return err
	}

	statusClient := reward.NewHTTPClient(cfg.Verification.StatusBaseURL, cfg.Verification.StatusTimeout,
		reward.WithClientLogger(log),
	)
	poller, err := reward.NewPoller(statusClient,
		reward.WithLogger(log),
		reward.WithCache(infra.codeCache),
		reward.WithInterval(cfg.Verification.PollInterval),
		reward.WithMaxWait(cfg.Verification.PollMaxWait),
	)
	if err != nil {
		return err
	}

	runner, err := service.New(gateway, buildVerifiers(cfg.Verification, log), service.AdmissionGate(controller),
		service.WithLogger(log),
		service.WithMetrics(verificationmetrics.New()),
		service.WithAuditPublisher(infra.audit),
		service.WithRewardPoller(poller),
		service.WithCost(cfg.Verification.Cost),
		service.WithSettleBackOff(service.DefaultSettleBackOff(cfg.Verification.SettleMaxRetries)),
	)
	if err != nil {
		return err
	}

	router := newRouter(routerDeps{
		logger:     log,
		adminToken: cfg.Server.AdminToken,
		jwt:        jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "verigate", "verigate"),
		runner:     runner,
		throttle:   ratelimitmw.New(infra.throttle, cfg.RateLimit.Limit, cfg.RateLimit.Window, log),
		ledger:     gateway,
		audit:      infra.audit,
		controller: controller,
		monitor:    monitor,
		health:     infra.Health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	monitor.Start(gctx)
	g.Go(func() error {
		log.Info("starting verigate",
			"addr", cfg.Server.Addr,
			"budget", controller.Budget(),
		)
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		monitor.Stop()
		return nil
	})

	err = g.Wait()
	log.Info("verigate stopped")
	return err
}
