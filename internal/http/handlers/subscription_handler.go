// Subscription HTTP handlers.
//
// This file exposes REST endpoints for the billing lifecycle:
//   - GET  /subscription/status     (authenticated status + usage snapshot)
//   - GET  /subscriptions/plans     (public plan catalog)
//   - POST /subscriptions/create    (verify + store a PayPal subscription)
//   - POST /subscriptions/cancel    (cancel upstream and locally)
//
// The status endpoint is deliberately failure-tolerant: the mobile client
// calls it on every app start, so internal errors degrade to "no
// subscription" instead of surfacing a 5xx.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/subtextlabs/go-subtext-backend/internal/domain"
	"github.com/subtextlabs/go-subtext-backend/internal/http/middleware"
	"github.com/subtextlabs/go-subtext-backend/internal/services"
)

//
// DTOs
//

// SubscriptionInfo is the client-facing view of a subscription row.
type SubscriptionInfo struct {
	Tier         string     `json:"tier" example:"premium"`
	Status       string     `json:"status" example:"active"`
	MonthlyLimit int        `json:"monthlyLimit" example:"400"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// UsageInfo is the client-facing view of the current month's counter.
type UsageInfo struct {
	Period string `json:"period" example:"2026-08"`
	Count  int    `json:"count" example:"17"`
	Limit  int    `json:"limit" example:"400"`
}

// SubscriptionStatusResponse is returned by the status endpoint.
type SubscriptionStatusResponse struct {
	HasSubscription bool              `json:"hasSubscription"`
	Subscription    *SubscriptionInfo `json:"subscription,omitempty"`
	Usage           *UsageInfo        `json:"usage,omitempty"`
}

// CreateSubscriptionRequest is the JSON payload for storing a checkout result.
type CreateSubscriptionRequest struct {
	// SubscriptionID is the provider subscription id from the PayPal checkout.
	SubscriptionID string `json:"subscriptionId" binding:"required" example:"I-BW452GLLEP1G"`
	// Tier is advisory; the server derives the real tier from the plan id.
	Tier string `json:"tier" example:"premium"`
}

// CancelSubscriptionRequest is the JSON payload for cancelling.
type CancelSubscriptionRequest struct {
	Reason string `json:"reason" example:"Too expensive"`
}

// subscriptionInfo converts a domain row into its client-facing view.
func subscriptionInfo(sub *domain.Subscription) *SubscriptionInfo {
	return &SubscriptionInfo{
		Tier:         sub.Tier,
		Status:       sub.Status,
		MonthlyLimit: sub.MonthlyLimit,
		ExpiresAt:    sub.ExpiresAt,
	}
}

//
// Handlers
//

// SubscriptionStatus godoc
// @ID          subscriptionStatus
// @Summary     Current subscription and usage
// @Description Returns the caller's subscription state and this month's usage.
// @Description Never returns a 5xx: internal failures degrade to hasSubscription=false.
// @Tags        Subscriptions
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.SubscriptionStatusResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /subscription/status [get]
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	sub, err := h.subSvc.Lookup(ctx, uid)
	if err != nil {
		// Missing row and storage failure both degrade; the client treats the
		// user as unsubscribed and billing state converges via webhooks.
		if !errors.Is(err, services.ErrSubscriptionNotFound) {
			middleware.LoggerFrom(c).Warn().Err(err).Str("user_id", uid).
				Msg("subscription status lookup failed")
		}
		ok(c, http.StatusOK, SubscriptionStatusResponse{HasSubscription: false})
		return
	}

	resp := SubscriptionStatusResponse{
		HasSubscription: sub.IsActive(),
		Subscription:    subscriptionInfo(sub),
	}
	if usage, err := h.usageSvc.CurrentUsage(ctx, uid); err == nil {
		resp.Usage = &UsageInfo{
			Period: usage.Period,
			Count:  usage.Count,
			Limit:  sub.MonthlyLimit,
		}
	} else {
		middleware.LoggerFrom(c).Warn().Err(err).Str("user_id", uid).
			Msg("usage snapshot failed")
	}
	ok(c, http.StatusOK, resp)
}

// ListPlans godoc
// @ID          listPlans
// @Summary     Plan catalog
// @Description Returns the purchasable tiers with their PayPal plan ids and quotas.
// @Tags        Subscriptions
// @Produce     json
//
// @Success     200  {array}  services.PlanInfo
// @Router      /subscriptions/plans [get]
func (h *Handlers) ListPlans(c *gin.Context) {
	ok(c, http.StatusOK, h.subSvc.Plans())
}

// CreateSubscription godoc
// @ID          createSubscription
// @Summary     Store a completed PayPal checkout
// @Description Verifies the subscription with PayPal and stores it for the caller.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateSubscriptionRequest  true  "Checkout result"
//
// @Success     201  {object}  handlers.SubscriptionInfo
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid body, unknown plan, or inactive subscription"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     404  {object}  handlers.ErrorResponse  "Subscription not found at PayPal"
// @Failure     502  {object}  handlers.ErrorResponse  "PayPal unavailable"
// @Router      /subscriptions/create [post]
func (h *Handlers) CreateSubscription(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SubscriptionID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscriptionId is required")
		return
	}

	sub, err := h.subSvc.Create(c.Request.Context(), uid, strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubscriptionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "subscription not found at the billing provider")
		case errors.Is(err, services.ErrSubscriptionNotActive):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscription is not active yet")
		case errors.Is(err, services.ErrUnknownPlan):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown plan id")
		case errors.Is(err, services.ErrUpstreamUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeUpstream, "billing provider is unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not store subscription")
		}
		return
	}

	ok(c, http.StatusCreated, subscriptionInfo(sub))
}

// CancelSubscription godoc
// @ID          cancelSubscription
// @Summary     Cancel the caller's subscription
// @Description Cancels at PayPal and marks the local row cancelled. Access continues
// @Description until the already-paid period expires.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CancelSubscriptionRequest  false  "Optional reason"
//
// @Success     204  "Cancelled"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     404  {object}  handlers.ErrorResponse  "No subscription to cancel"
// @Failure     502  {object}  handlers.ErrorResponse  "PayPal unavailable"
// @Router      /subscriptions/cancel [post]
func (h *Handlers) CancelSubscription(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	// Body is optional; a bare POST cancels with the default reason.
	var req CancelSubscriptionRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.subSvc.Cancel(c.Request.Context(), uid, req.Reason); err != nil {
		switch {
		case errors.Is(err, services.ErrSubscriptionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no subscription to cancel")
		case errors.Is(err, services.ErrUpstreamUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeUpstream, "billing provider is unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not cancel subscription")
		}
		return
	}
	noContent(c)
}
