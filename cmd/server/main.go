// Command server runs the Subtext backend HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/subtextlabs/go-subtext-backend/docs"
	"github.com/subtextlabs/go-subtext-backend/internal/authapi"
	"github.com/subtextlabs/go-subtext-backend/internal/config"
	httpapi "github.com/subtextlabs/go-subtext-backend/internal/http"
	"github.com/subtextlabs/go-subtext-backend/internal/llm/gemini"
	"github.com/subtextlabs/go-subtext-backend/internal/observability"
	"github.com/subtextlabs/go-subtext-backend/internal/payments"
	"github.com/subtextlabs/go-subtext-backend/internal/repo"
	"github.com/subtextlabs/go-subtext-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title       Subtext API
// @version     1.0
// @description Backend for the Subtext mobile app: extracts received messages from chat
// @description screenshots, analyzes conversations, and manages PayPal subscriptions with
// @description monthly usage quotas.
// @BasePath    /api
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the access token.
func main() {
	// A local .env complements the environment; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg config.Config) error {
	// Secrets have no defaults; refuse to boot half-configured.
	if cfg.AI.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}

	log.Info().
		Str("version", version).
		Str("port", cfg.Port).
		Str("gin_mode", cfg.GinMode).
		Str("db_path", cfg.DBPath).
		Bool("otel", cfg.OTEL.Enabled).
		Msg("subtext backend starting")

	gin.SetMode(cfg.GinMode)

	ctx, stop := newServerContext()
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("trace exporter shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %q: %w", cfg.DBPath, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics(), tracing.WithDBName("subtext"))); err != nil {
			return fmt.Errorf("gorm tracing plugin: %w", err)
		}
	}

	ai, err := gemini.New(ctx, cfg.AI.APIKey, cfg.AI.VisionModel, cfg.AI.TextModel)
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}

	auth := authapi.New(cfg.Auth.BaseURL, cfg.Auth.APIKey, cfg.Auth.Timeout)
	billing := payments.New(payments.Options{
		ClientID:  cfg.PayPal.ClientID,
		Secret:    cfg.PayPal.Secret,
		Mode:      cfg.PayPal.Mode,
		WebhookID: cfg.PayPal.WebhookID,
		BaseURL:   cfg.PayPal.BaseURL,
		Timeout:   cfg.PayPal.Timeout,
	})

	docs.SwaggerInfo.Version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath

	r := gin.New()
	httpapi.RegisterRoutes(r, db, ai, auth, billing, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := serveHTTP(server)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		log.Info().Msg("server exited")
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// newServerContext returns a context cancelled on SIGINT or SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveHTTP(server *http.Server) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}
