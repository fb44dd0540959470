package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitit/internal/config"
	"github.com/mmynk/splitit/internal/extraction"
	"github.com/mmynk/splitit/internal/metrics"
	"github.com/mmynk/splitit/internal/service"
	"github.com/mmynk/splitit/internal/session"
	"github.com/mmynk/splitit/internal/settlement"
	"github.com/mmynk/splitit/internal/storage/sqlite"
	"github.com/mmynk/splitit/internal/workflow"
	"github.com/mmynk/splitit/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := sqlite.New(cfg.LedgerDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	defer store.Close()
	slog.Info("Ledger initialized", "dsn", cfg.LedgerDSN)

	secret := cfg.SettlementSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		slog.Warn("No settlement secret configured; payment links will not survive a restart")
	}
	signer, err := settlement.NewLinkSigner(secret, cfg.SettlementLinkTTL)
	if err != nil {
		return err
	}
	settlements := settlement.NewService(store, signer, cfg.SettlementBaseURL, m)

	if cfg.GeminiAPIKey == "" {
		slog.Warn("No Gemini API key configured; receipt uploads will fail")
	}
	extractor := extraction.NewGeminiExtractor(extraction.GeminiConfig{
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		BaseURL:         cfg.GeminiBaseURL,
		Timeout:         cfg.ExtractionTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})

	defaultTip := cfg.DefaultTip()
	sessions := session.NewRegistry(
		func(logger *slog.Logger) *workflow.Controller {
			return workflow.New(extractor,
				workflow.WithLogger(logger),
				workflow.WithMetrics(m),
				workflow.WithDefaultTip(defaultTip),
			)
		},
		session.WithMetrics(m),
		session.WithOnEvict(settlements.PurgeAsync),
	)
	go sessions.RunPruner(ctx, cfg.PruneInterval, cfg.SessionIdleTTL)

	router := newRouter(service.NewBillService(sessions, settlements), settlements, m, cfg.StaticPath)

	// h2c for HTTP/2 without TLS (required for Connect streaming clients)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate settlement secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
