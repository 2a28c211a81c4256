// Extraction HTTP handlers.
//
// This file exposes the core product endpoints:
//   - POST /ocr       (authenticated: screenshot upload → received messages)
//   - POST /extract   (unauthenticated: raw provider text → marker parse only)
//
// It also declares the service contracts consumed by every handler in this
// package and the Handlers aggregate they hang off. Handlers are
// transport-thin: they validate input, call application services, and
// translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/subtextlabs/go-subtext-backend/internal/authapi"
	"github.com/subtextlabs/go-subtext-backend/internal/domain"
	"github.com/subtextlabs/go-subtext-backend/internal/observability"
	"github.com/subtextlabs/go-subtext-backend/internal/payments"
	"github.com/subtextlabs/go-subtext-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ExtractionService turns conversation screenshots (or raw provider output)
// into the list of received messages.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ExtractionService interface {
	// ExtractFromImage runs the cache-then-vision pipeline for userID.
	ExtractFromImage(ctx context.Context, userID string, image []byte, mimeType string) (string, error)
	// ExtractFromText applies marker parsing and validation to raw text.
	ExtractFromText(raw string) (string, error)
}

// AnalysisService produces the psychological read and suggested reply.
type AnalysisService interface {
	// Analyze joins the ordered messages and queries the text model.
	Analyze(ctx context.Context, messages []string) (string, error)
}

// SubscriptionService owns the billing lifecycle consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SubscriptionService interface {
	// Plans returns the static plan catalog.
	Plans() []services.PlanInfo
	// Create verifies subscriptionID with the billing provider and stores it.
	Create(ctx context.Context, userID, subscriptionID string) (*domain.Subscription, error)
	// Cancel cancels the user's subscription upstream and locally.
	Cancel(ctx context.Context, userID, reason string) error
	// Lookup returns the user's subscription row regardless of status.
	Lookup(ctx context.Context, userID string) (*domain.Subscription, error)
	// ActiveFor returns the subscription only when its status is active.
	ActiveFor(ctx context.Context, userID string) (*domain.Subscription, error)
	// HandleEvent applies a parsed webhook event to local state.
	HandleEvent(ctx context.Context, ev *payments.WebhookEvent) error
}

// UsageService reports monthly usage counters.
type UsageService interface {
	// CurrentUsage fetches (or lazily creates) this month's counter.
	CurrentUsage(ctx context.Context, userID string) (*domain.UsagePeriod, error)
	// LimitReached reports whether the user exhausted the monthly quota.
	LimitReached(ctx context.Context, userID string) (bool, error)
}

// AuthService fronts the external auth provider.
type AuthService interface {
	// SignUp registers a new account and returns its first session.
	SignUp(ctx context.Context, email, password, fullName string) (*authapi.Session, error)
	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, email, password string) (*authapi.Session, error)
	// Refresh rotates a refresh token into a fresh session.
	Refresh(ctx context.Context, refreshToken string) (*authapi.Session, error)
	// SignOut revokes the session behind accessToken.
	SignOut(ctx context.Context, accessToken string) error
}

// WebhookVerifier checks PayPal webhook transmission signatures.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, proof payments.WebhookProof, rawEvent []byte) (bool, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for extraction, analysis, auth, and
// billing. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	extractSvc  ExtractionService
	analysisSvc AnalysisService
	subSvc      SubscriptionService
	usageSvc    UsageService
	authSvc     AuthService
	verifier    WebhookVerifier

	// maxUpload bounds the accepted screenshot size in bytes.
	maxUpload int64
}

// New constructs and returns a Handlers instance bound to the given services.
// maxUpload <= 0 falls back to 10 MiB.
func New(extract ExtractionService, analysis AnalysisService, subs SubscriptionService,
	usage UsageService, auth AuthService, verifier WebhookVerifier, maxUpload int64) *Handlers {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handlers{
		extractSvc:  extract,
		analysisSvc: analysis,
		subSvc:      subs,
		usageSvc:    usage,
		authSvc:     auth,
		verifier:    verifier,
		maxUpload:   maxUpload,
	}
}

// userID extracts the authenticated user id from Gin context (set by the auth
// middleware). If absent, it falls back to "X-User-ID" header (tests use it).
// Returns "" for unauthenticated requests; handlers treat that as a 401.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

//
// DTOs
//

// ParsedResult carries one extracted text block.
type ParsedResult struct {
	ParsedText string `json:"ParsedText" example:"hey, are you free tonight?\nlet me know"`
}

// OCRResponse is the OCR-provider-compatible shape the mobile client parses.
// The PascalCase keys are part of the wire contract and must not change.
type OCRResponse struct {
	ParsedResults []ParsedResult `json:"ParsedResults"`
}

// ExtractTextRequest is the JSON payload for the raw-text extraction endpoint.
type ExtractTextRequest struct {
	// RawText is the verbatim provider output to parse.
	RawText string `json:"rawText" binding:"required" example:"RECEIVED_MESSAGES_START\nhey\nRECEIVED_MESSAGES_END"`
}

// ExtractTextResponse wraps the parsed received messages.
type ExtractTextResponse struct {
	Text string `json:"text" example:"hey"`
}

//
// Handlers
//

// ExtractFromImage godoc
// @ID          extractFromImage
// @Summary     Extract received messages from a screenshot
// @Description Uploads a chat screenshot and returns only the messages the user received,
// @Description one per line. Requires an active subscription with remaining quota.
// @Description Identical uploads are served from cache without consuming quota.
// @Tags        Extraction
// @Accept      mpfd
// @Produce     json
// @Security    BearerAuth
//
// @Param       image  formData  file  true  "Conversation screenshot (image/*, max 10 MB)"
//
// @Success     200  {object}  handlers.OCRResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad image / not a conversation / empty result"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse  "No subscription or limit reached"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "AI provider unavailable"
// @Router      /ocr [post]
func (h *Handlers) ExtractFromImage(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	// Subscription gate.
	if _, err := h.subSvc.ActiveFor(ctx, uid); err != nil {
		if errors.Is(err, services.ErrNoSubscription) {
			observability.QuotaRejections.WithLabelValues("no_subscription").Inc()
			fail(c, http.StatusForbidden, ErrCodeNoSubscription, "an active subscription is required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "subscription check failed")
		return
	}

	// Quota gate.
	reached, err := h.usageSvc.LimitReached(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "usage check failed")
		return
	}
	if reached {
		observability.QuotaRejections.WithLabelValues("limit_reached").Inc()
		fail(c, http.StatusForbidden, ErrCodeLimitReached, "monthly usage limit reached")
		return
	}

	data, mime, ok2 := h.readImage(c)
	if !ok2 {
		return // readImage already wrote the error
	}

	text, err := h.extractSvc.ExtractFromImage(ctx, uid, data, mime)
	if err != nil {
		h.failExtraction(c, err)
		return
	}

	ok(c, http.StatusOK, OCRResponse{ParsedResults: []ParsedResult{{ParsedText: text}}})
}

// ExtractFromText godoc
// @ID          extractFromText
// @Summary     Parse raw extraction output
// @Description Applies the marker parsing and validation rules to raw text without
// @Description calling the AI provider. No auth, no cache, no quota.
// @Tags        Extraction
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ExtractTextRequest  true  "Raw text payload"
//
// @Success     200  {object}  handlers.ExtractTextResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body / not a conversation / empty result"
// @Router      /extract [post]
func (h *Handlers) ExtractFromText(c *gin.Context) {
	var req ExtractTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	text, err := h.extractSvc.ExtractFromText(req.RawText)
	if err != nil {
		h.failExtraction(c, err)
		return
	}
	ok(c, http.StatusOK, ExtractTextResponse{Text: text})
}

// readImage pulls the multipart "image" field, enforces the size cap, and
// sniffs the MIME type. On failure it writes the error response and returns
// ok=false.
func (h *Handlers) readImage(c *gin.Context) (data []byte, mime string, ok bool) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'image' is required")
		return nil, "", false
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "image exceeds the size limit")
		return nil, "", false
	}

	// Read one byte past the cap so undeclared oversizes are caught too.
	data, err = io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read uploaded image")
		return nil, "", false
	}
	if int64(len(data)) > h.maxUpload {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "image exceeds the size limit")
		return nil, "", false
	}
	if len(data) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "uploaded image is empty")
		return nil, "", false
	}

	// Sniffed content type is authoritative; the declared header is not trusted.
	mime = http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "uploaded file is not an image")
		return nil, "", false
	}
	return data, mime, true
}

// failExtraction maps extraction service sentinels to HTTP responses.
func (h *Handlers) failExtraction(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotAConversation):
		fail(c, http.StatusBadRequest, ErrCodeNotAConversation, "the image does not show a chat conversation")
	case errors.Is(err, services.ErrEmptyOrInvalid):
		fail(c, http.StatusBadRequest, ErrCodeEmptyOrInvalid, "no received messages could be identified")
	case errors.Is(err, services.ErrUpstreamUnavailable):
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "AI provider is unavailable")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "extraction failed")
	}
}
