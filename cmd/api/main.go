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

	"call-platform/internal/audit"
	"call-platform/internal/auth"
	"call-platform/internal/broadcast"
	"call-platform/internal/calls"
	"call-platform/internal/config"
	"call-platform/internal/httpapi"
	"call-platform/internal/huddles"
	"call-platform/internal/livecache"
	"call-platform/internal/reporting"
	"call-platform/pkg/logger"
	"call-platform/pkg/utils"

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

	if cfg.App.Env == "production" {
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

	cache := livecache.NewRedis(rdb)
	sink := broadcast.NewRedisSink(rdb)

	callCoord := calls.NewCoordinator(calls.NewSQLRepo(db), cache, sink, log)
	callCoord.SetActiveTTL(cfg.Session.ActiveTTL)

	huddleCoord := huddles.NewCoordinator(huddles.NewSQLRepo(db), cache, sink, log)
	huddleCoord.SetActiveTTL(cfg.Session.ActiveTTL)
	huddleCoord.SetMaxParticipants(cfg.Session.HuddleMaxParticipants)

	auditSvc := audit.NewService(audit.NewSQLRepo(db))
	reportSvc := reporting.NewService(reporting.NewSQLRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:       authManager,
		Calls:      callCoord,
		Huddles:    huddleCoord,
		Cache:      cache,
		Audit:      auditSvc,
		Reports:    reportSvc,
		MailboxTTL: cfg.Session.MailboxTTL,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), db, rdb)

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
