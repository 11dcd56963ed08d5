package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jwtauth "pet-custody-escrow/internal/adapters/auth/jwt"
	ledgerhorizon "pet-custody-escrow/internal/adapters/ledger/horizon"
	pg "pet-custody-escrow/internal/adapters/storage/postgres"
	"pet-custody-escrow/internal/domain/escrow"
	"pet-custody-escrow/internal/platform/config"
	"pet-custody-escrow/internal/platform/logger"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/auth"
	"pet-custody-escrow/internal/ports/ledger"
	"pet-custody-escrow/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("config:", err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})

	var db *pg.DB
	if cfg.DBDSN != "" {
		db, err = pg.Open(cfg.DBDSN)
		if err != nil {
			log.Error("open postgres", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
		defer db.Close()
	} else {
		log.Warn("DB_DSN empty, using in-memory storage", nil)
	}

	var gw ledger.Gateway
	if cfg.LedgerMode == "horizon" {
		gw, err = ledgerhorizon.New(ledgerhorizon.Config{
			BaseURL:       cfg.HorizonURL,
			EscrowAccount: cfg.EscrowAccount,
		})
		if err != nil {
			log.Error("horizon gateway", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
	} else {
		log.Warn("LEDGER_MODE=memory, ledger is simulated", nil)
	}

	var verifier auth.AuthVerifier
	if cfg.JWTSecret != "" {
		verifier = jwtauth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	} else {
		log.Warn("JWT_SECRET empty, auth in dev mode", nil)
	}

	app := router.New(router.Options{
		AuthVerifier: verifier,
		DB:           db,
		Ledger:       gw,
		Log:          log,
		Metrics:      metrics.New(),
		Retry: escrow.RetryPolicy{
			MaxAttempts: uint64(cfg.LedgerRetryMax),
			Base:        cfg.LedgerRetryBase,
			Ceiling:     cfg.LedgerRetryCeiling,
		},
		ReconcileInterval: cfg.ReconcileInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.Reconciler.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting server", map[string]any{"addr": srv.Addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", map[string]any{"err": err.Error()})
		os.Exit(1)
	}
}
