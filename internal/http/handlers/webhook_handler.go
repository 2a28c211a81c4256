// Billing webhook HTTP handler.
//
// PayPal delivers subscription lifecycle events here. Every payload is
// verified against the provider's signature API before any state changes;
// unverifiable deliveries are rejected so that forged events can never
// upgrade an account.
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/subtextlabs/go-subtext-backend/internal/http/middleware"
	"github.com/subtextlabs/go-subtext-backend/internal/observability"
	"github.com/subtextlabs/go-subtext-backend/internal/payments"
)

// PayPalWebhook godoc
// @ID          paypalWebhook
// @Summary     Receive PayPal events
// @Description Verifies the delivery signature and applies subscription lifecycle changes.
// @Description Processing failures after verification are acknowledged anyway; PayPal
// @Description redelivers on non-2xx and every apply is idempotent.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Success     200  {object}  map[string]bool         "Acknowledged"
// @Failure     400  {object}  handlers.ErrorResponse  "Unreadable body or invalid signature"
// @Failure     500  {object}  handlers.ErrorResponse  "Verification service error"
// @Router      /webhooks/paypal [post]
func (h *Handlers) PayPalWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		observability.WebhookEvents.WithLabelValues("unknown", "unreadable").Inc()
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}

	proof := payments.ProofFromHeaders(c.Request.Header)
	valid, err := h.verifier.VerifyWebhookSignature(c.Request.Context(), proof, raw)
	if err != nil {
		// Verification itself failed (provider unreachable). Non-2xx makes
		// PayPal retry the delivery later.
		observability.WebhookEvents.WithLabelValues("unknown", "verify_error").Inc()
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "webhook verification unavailable")
		return
	}
	if !valid {
		observability.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "webhook signature verification failed")
		return
	}

	ev, err := payments.ParseEvent(raw)
	if err != nil {
		observability.WebhookEvents.WithLabelValues("unknown", "unparseable").Inc()
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed event payload")
		return
	}

	if err := h.subSvc.HandleEvent(c.Request.Context(), ev); err != nil {
		// The signature checked out, so the delivery is genuine. Ack it and
		// rely on logs; bouncing it would just replay the same failure.
		middleware.LoggerFrom(c).Warn().
			Err(err).
			Str("event_id", ev.ID).
			Str("event_type", ev.EventType).
			Msg("webhook apply failed")
		observability.WebhookEvents.WithLabelValues(ev.EventType, "apply_error").Inc()
		ok(c, http.StatusOK, gin.H{"received": true})
		return
	}

	observability.WebhookEvents.WithLabelValues(ev.EventType, "applied").Inc()
	ok(c, http.StatusOK, gin.H{"received": true})
}
