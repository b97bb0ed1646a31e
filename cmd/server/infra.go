package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"verigate/internal/ledger"
	ledgerstore "verigate/internal/ledger/store"
	"verigate/internal/platform/config"
	"verigate/internal/platform/kafka"
	"verigate/internal/platform/postgres"
	"verigate/internal/platform/redis"
	ratelimitmw "verigate/internal/ratelimit/middleware"
	"verigate/internal/ratelimit/store/bucket"
	"verigate/internal/reward"
	"verigate/internal/reward/cache"
	"verigate/internal/verification/models"
	"verigate/internal/verification/verifier"
	"verigate/pkg/platform/audit/publisher"
	kafkastore "verigate/pkg/platform/audit/store/kafka"
	auditmemory "verigate/pkg/platform/audit/store/memory"
)

const auditBufferSize = 1024

// infra holds the optional external clients. Each falls back to an in-process
// implementation when its URL or brokers are not configured.
type infra struct {
	db          *sql.DB
	redis       *redis.Client
	kafka       *kgo.Client
	ledgerStore ledger.Store
	codeCache   reward.CodeCache
	throttle    ratelimitmw.Limiter
	audit       *publisher.Publisher
	logger      *slog.Logger
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *infra, err error) {
	in := &infra{logger: log}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	if cfg.Database.URL != "" {
		if in.db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
		if err = postgres.Migrate(ctx, in.db); err != nil {
			return nil, err
		}
		in.ledgerStore = ledgerstore.NewPostgres(in.db)
		log.Info("ledger store: postgres")
	} else {
		in.ledgerStore = ledgerstore.NewInMemory()
		log.Warn("DATABASE_URL not set, ledger kept in memory")
	}

	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if in.redis != nil {
		in.codeCache = cache.NewRedis(in.redis.Client, cfg.Redis.CodeTTL)
		in.throttle = bucket.NewRedisStore(in.redis.Client)
	} else {
		in.codeCache = cache.NewMemory(cfg.Redis.CodeTTL)
		in.throttle = bucket.NewInMemoryBucketStore()
	}

	sinks := publisher.Fanout{auditmemory.NewInMemoryStore()}
	if in.kafka, err = kafka.New(cfg.Kafka); err != nil {
		return nil, err
	}
	if in.kafka != nil {
		if err = kafka.EnsureTopic(ctx, kafka.NewAdmin(in.kafka), cfg.Kafka.Topic); err != nil {
			return nil, err
		}
		sinks = append(sinks, kafkastore.New(in.kafka, cfg.Kafka.Topic))
	}
	in.audit = publisher.NewPublisher(sinks,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	return in, nil
}

// Health pings every configured dependency.
func (in *infra) Health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		errs = append(errs, in.db.PingContext(ctx))
	}
	if in.redis != nil {
		errs = append(errs, in.redis.Health(ctx))
	}
	if in.kafka != nil {
		errs = append(errs, in.kafka.Ping(ctx))
	}
	return errors.Join(errs...)
}

// Close drains the audit buffer before the clients it writes to go away.
func (in *infra) Close() {
	if in.audit != nil {
		in.audit.Close()
	}
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.logger.Warn("redis close failed", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.logger.Warn("postgres close failed", "error", err)
		}
	}
}

// buildVerifiers registers an HTTP verifier for every category with a backend
// URL and the development mock for the rest.
func buildVerifiers(cfg config.VerificationConfig, log *slog.Logger) *verifier.Registry {
	registry := verifier.NewRegistry()
	for _, category := range models.Categories() {
		if url := cfg.BackendURLs[category.String()]; url != "" {
			registry.Register(category, verifier.NewHTTPVerifier(category, url, cfg.BackendTimeout))
			continue
		}
		log.Warn("no backend configured, using mock verifier", "category", category)
		registry.Register(category, verifier.MockVerifier{Category: category, Latency: cfg.MockLatency})
	}
	return registry
}
