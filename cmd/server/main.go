package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/battlecp/battlecp-backend/internal/config"
	"github.com/battlecp/battlecp-backend/internal/httpapi"
	"github.com/battlecp/battlecp-backend/internal/registry"
	"github.com/battlecp/battlecp-backend/internal/sweep"
	"github.com/battlecp/battlecp-backend/internal/verify"
	"github.com/battlecp/battlecp-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	verifier := verify.New(cfg.CodeforcesBase, cfg.VerifyTimeout, logger.Named("verify"))

	sweeper := sweep.New(reg, cfg.SweepInterval, logger.Named("sweep"))
	go sweeper.Run(ctx)

	deps := httpapi.Deps{
		Registry: reg,
		Verifier: verifier,
		Log:      logger.Named("http"),
		WS: ws.Handler(ws.Deps{
			Registry: reg,
			Verifier: verifier,
			Log:      logger.Named("ws"),
		}),
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(deps),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
