package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"idsync/internal/audit"
	identityledger "idsync/internal/identity/ledger"
	identitymetrics "idsync/internal/identity/metrics"
	identityservice "idsync/internal/identity/service"
	identitypg "idsync/internal/identity/store/postgres"
	"idsync/internal/platform/config"
	"idsync/internal/platform/httpserver"
	"idsync/internal/platform/logger"
	platformmetrics "idsync/internal/platform/metrics"
	"idsync/internal/platform/middleware"
	"idsync/internal/platform/postgres"
	platformredis "idsync/internal/platform/redis"
	"idsync/internal/provider"
	sessioncache "idsync/internal/session/cache"
	sessionhandler "idsync/internal/session/handler"
	sessionmetrics "idsync/internal/session/metrics"
	sessionservice "idsync/internal/session/service"
	"idsync/internal/token"
	"idsync/internal/webhook"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service
// packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("idsync exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient == nil {
		return errors.New("IDSYNC_REDIS_URL is required: the event ledger and session cache live in redis")
	}
	defer redisClient.Close()

	users := identitypg.New(db)
	eventLedger := identityledger.NewRedis(redisClient.Client, cfg.EventRetention)
	resultCache := sessioncache.NewRedis(redisClient.Client, cfg.SessionCacheTTL)

	publisher, auditWorker, closeAudit, err := buildAudit(ctx, cfg.Kafka, log)
	if err != nil {
		return fmt.Errorf("build audit pipeline: %w", err)
	}
	defer closeAudit()

	reconciler, err := identityservice.New(users, eventLedger,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithAuditPublisher(publisher),
	)
	if err != nil {
		return fmt.Errorf("build identity reconciler: %w", err)
	}

	validator, err := sessionservice.New(
		resultCache,
		token.NewVerifier(cfg.JWT),
		users,
		users,
		reconciler,
		provider.NewHTTPClient(cfg.Provider),
		sessionservice.WithLogger(log),
		sessionservice.WithMetrics(sessionmetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("build session validator: %w", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(platformmetrics.New()))
	router.Use(chimw.Timeout(30 * time.Second))

	webhook.New(reconciler, webhook.NewHMACVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance), log).Register(router)
	sessionhandler.New(validator, log).Register(router)
	router.Get("/healthz", healthz(db, redisClient))
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting idsync", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if auditWorker != nil {
		g.Go(func() error {
			if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// buildAudit returns a no-op publisher unless Kafka brokers are configured.
func buildAudit(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (audit.Publisher, *audit.Worker, func(), error) {
	if len(cfg.Brokers) == 0 {
		return audit.NopPublisher{}, nil, func() {}, nil
	}

	sink, err := audit.NewKafkaSink(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, nil, err
	}
	publisher := audit.NewChannelPublisher(1024, log)
	worker := audit.NewWorker(sink, publisher.Inbox(), log)
	closer := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.Close(closeCtx); err != nil {
			log.Warn("audit sink close failed", "error", err)
		}
	}
	return publisher, worker, closer, nil
}

func healthz(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "postgres unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Health(ctx); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
