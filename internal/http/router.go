// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, throttling, and the per-user request quota.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID before logging before recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/subtextlabs/go-subtext-backend/internal/authapi"
	"github.com/subtextlabs/go-subtext-backend/internal/cache"
	"github.com/subtextlabs/go-subtext-backend/internal/config"
	"github.com/subtextlabs/go-subtext-backend/internal/http/handlers"
	"github.com/subtextlabs/go-subtext-backend/internal/http/middleware"
	"github.com/subtextlabs/go-subtext-backend/internal/llm"
	"github.com/subtextlabs/go-subtext-backend/internal/payments"
	"github.com/subtextlabs/go-subtext-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), the edge throttle,
// CORS and security headers, liveness and metrics endpoints, and then mounts
// the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (screenshot cap plus multipart slack)
//  6. Metrics
//  7. Edge throttle (token bucket per user/IP, in front of everything)
//  8. CORS and security headers
//  9. gzip response compression
//
// Bearer auth and the sliding-window quota are route-scoped, not global: the
// quota counts only accepted OCR requests and must run after auth so it keys
// by user id.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, ai llm.Client, auth *authapi.Client, billing *payments.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Paypal-Transmission-Sig", // webhook signature, useless in logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body cap: the screenshot limit plus 1 MiB of multipart framing
	// slack. JSON endpoints are far below this; the handler enforces the exact
	// per-image cap itself.
	r.Use(limitBody(cfg.MaxUploadBytes + 1<<20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Edge throttle per user/IP. Absorbs bursts and abuse; the product
	// quota is the per-route sliding window further down.
	th := middleware.NewThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst, middleware.KeyByUserOrIP())
	r.Use(th.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// 9) Compress responses; extraction and analysis bodies are text-heavy.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness probes: the mobile client pings / and /api, infra uses /health.
	liveness := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/", liveness)
	r.GET("/api", liveness)
	r.GET("/health", liveness)

	// Swagger UI (spec served from the generated docs package)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Build services from clients, db, and cache
	contentCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)
	usageSvc := services.NewUsageService(db)
	extractSvc := &services.ExtractionService{
		LLM:     ai,
		Cache:   contentCache,
		Usage:   usageSvc,
		Timeout: cfg.AI.Timeout,
	}
	analysisSvc := &services.AnalysisService{
		LLM:     ai,
		Timeout: cfg.AI.Timeout,
	}
	subSvc := services.NewSubscriptionService(db, billing, services.PlanIDs{
		Basic:     cfg.PayPal.PlanBasic,
		Premium:   cfg.PayPal.PlanPremium,
		Unlimited: cfg.PayPal.PlanUnlimited,
	})
	h := handlers.New(extractSvc, analysisSvc, subSvc, usageSvc, auth, billing, cfg.MaxUploadBytes)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api"
	api := groupWithPrefix(r, apiBase)
	{
		// Delegated auth
		api.POST("/auth/signup", h.Signup)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/refresh", h.Refresh)

		// Billing surface without auth: catalog and provider callbacks
		api.GET("/subscriptions/plans", h.ListPlans)
		api.POST("/webhooks/paypal", h.PayPalWebhook)

		// Marker parsing without provider calls, cache, or metering
		api.POST("/extract", h.ExtractFromText)

		// Everything below requires a provider-issued bearer token
		authed := api.Group("", middleware.RequireAuth(cfg.Auth.JWTSecret))
		{
			authed.POST("/auth/logout", h.Logout)
			authed.GET("/subscription/status", h.SubscriptionStatus)
			authed.POST("/subscriptions/create", h.CreateSubscription)
			authed.POST("/subscriptions/cancel", h.CancelSubscription)
			authed.POST("/analyze", h.Analyze)

			// The product quota: a sliding window over accepted OCR requests,
			// keyed by the authenticated user.
			rl := middleware.NewRateLimiter(cfg.RateMaxRequests, cfg.RateWindow, middleware.KeyByUserOrIP())
			authed.POST("/ocr", rl.Handler(), h.ExtractFromImage)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
