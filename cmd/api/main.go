package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"
	"github.com/pkondra/ring-receptionist/internal/audit"
	"github.com/pkondra/ring-receptionist/internal/auth"
	"github.com/pkondra/ring-receptionist/internal/billing"
	"github.com/pkondra/ring-receptionist/internal/config"
	"github.com/pkondra/ring-receptionist/internal/extraction"
	"github.com/pkondra/ring-receptionist/internal/httpapi"
	"github.com/pkondra/ring-receptionist/internal/phonepool"
	"github.com/pkondra/ring-receptionist/internal/reporting"
	"github.com/pkondra/ring-receptionist/internal/session"
	"github.com/pkondra/ring-receptionist/internal/webhook"
	"github.com/pkondra/ring-receptionist/internal/workspace"
	"github.com/pkondra/ring-receptionist/pkg/logger"
	"github.com/pkondra/ring-receptionist/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores.
	sessionRepo := session.NewPostgresRepo(db)
	agentRepo := agents.NewPostgresRepo(db)
	workspaceRepo := workspace.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	billingEvents := billing.NewPostgresEventStore(db)

	// Call ingestion pipeline.
	sessions := session.NewService(sessionRepo, agentRepo, cfg.Internal.MutationSecret)
	extractor := extraction.NewOrchestrator(
		extraction.NewHTTPClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout),
		sessions,
		cfg.Internal.MutationSecret,
	)
	postCallHook := webhook.Handler{
		WebhookSecret:  cfg.ElevenLabs.WebhookSecret,
		MutationSecret: cfg.Internal.MutationSecret,
		ProviderAPIKey: cfg.ElevenLabs.APIKey,
		Sessions:       sessions,
		Extractor:      extractor,
		Dedup:          webhook.NewRedisDeduper(rdb, 0),
	}

	// Phone pool and billing.
	pool := phonepool.NewAllocator(
		phonepool.NewElevenLabsProvider(cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.APIKey, 0),
		agentRepo,
		phonepool.NewRedisLocker(rdb, 0),
		auditSvc,
	)
	stripeHook := billing.Handler{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Workspaces:    workspaceRepo,
		Reconciler:    billing.NewReconciler(workspaceRepo, agentRepo, pool, auditSvc),
		Events:        billingEvents,
	}

	api := httpapi.Handlers{
		Auth:     authManager,
		Sessions: sessionRepo,
		Reports:  reporting.NewService(reporting.NewSessionSource(sessionRepo)),
		Pool:     pool,
		Audit:    auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, authManager, api, postCallHook, stripeHook, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
