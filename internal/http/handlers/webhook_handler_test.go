package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/subtextlabs/go-subtext-backend/internal/payments"
)

func postWebhook(t *testing.T, h *Handlers, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.POST("/webhooks/paypal", h.PayPalWebhook)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

const activatedEventJSON = `{
	"id": "WH-1",
	"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
	"resource_type": "subscription",
	"resource": {
		"id": "I-BW452GLLEP1G",
		"plan_id": "P-PREMIUM",
		"status": "ACTIVE",
		"custom_id": "u1"
	}
}`

func TestPayPalWebhook_EmptyBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := postWebhook(t, newTestHandlers(), "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty body -> %d", w.Code)
	}
	if er := errBody(t, w); er.Error != ErrCodeBadRequest {
		t.Fatalf("unexpected envelope: %+v", er)
	}
}

func TestPayPalWebhook_VerificationUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newTestHandlers(func(h *Handlers) {
		h.verifier = stubVerifier{verify: func(context.Context, payments.WebhookProof, []byte) (bool, error) {
			return false, errors.New("paypal 503")
		}}
	})
	// 500 so PayPal redelivers once verification is back.
	w := postWebhook(t, h, activatedEventJSON, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("verify error -> %d", w.Code)
	}
}

func TestPayPalWebhook_InvalidSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var calls int
	h := newTestHandlers(func(h *Handlers) {
		h.verifier = stubVerifier{verify: func(context.Context, payments.WebhookProof, []byte) (bool, error) {
			return false, nil
		}}
		h.subSvc = stubSubSvc{handleEvent: func(context.Context, *payments.WebhookEvent) error {
			calls++
			return nil
		}}
	})

	w := postWebhook(t, h, activatedEventJSON, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("forged delivery -> %d", w.Code)
	}
	if er := errBody(t, w); er.Error != ErrCodeInvalidSignature {
		t.Fatalf("unexpected envelope: %+v", er)
	}
	if calls != 0 {
		t.Fatalf("forged event must not reach the service")
	}
}

func TestPayPalWebhook_UnparseablePayload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Signature passes but the body is not an event.
	w := postWebhook(t, newTestHandlers(), "not json", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad payload -> %d", w.Code)
	}

	// Valid JSON without event_type is rejected too.
	w = postWebhook(t, newTestHandlers(), `{"id":"WH-2"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing event_type -> %d", w.Code)
	}
}

func TestPayPalWebhook_Applied(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotProof payments.WebhookProof
	var gotEvent *payments.WebhookEvent
	h := newTestHandlers(func(h *Handlers) {
		h.verifier = stubVerifier{verify: func(_ context.Context, proof payments.WebhookProof, _ []byte) (bool, error) {
			gotProof = proof
			return true, nil
		}}
		h.subSvc = stubSubSvc{handleEvent: func(_ context.Context, ev *payments.WebhookEvent) error {
			gotEvent = ev
			return nil
		}}
	})

	w := postWebhook(t, h, activatedEventJSON, map[string]string{
		"Paypal-Transmission-Id":   "tx-1",
		"Paypal-Transmission-Time": "2026-08-21T10:00:00Z",
		"Paypal-Transmission-Sig":  "sig==",
		"Paypal-Cert-Url":          "https://api.paypal.com/cert.pem",
		"Paypal-Auth-Algo":         "SHA256withRSA",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("applied -> %d body=%s", w.Code, w.Body.String())
	}
	var out map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !out["received"] {
		t.Fatalf("missing ack: %s", w.Body.String())
	}

	if gotProof.TransmissionID != "tx-1" || gotProof.AuthAlgo != "SHA256withRSA" {
		t.Fatalf("proof headers not forwarded: %+v", gotProof)
	}
	if gotEvent == nil || gotEvent.EventType != payments.EventSubscriptionActivated ||
		gotEvent.Resource.ID != "I-BW452GLLEP1G" || gotEvent.Resource.CustomID != "u1" {
		t.Fatalf("unexpected event: %+v", gotEvent)
	}
}

func TestPayPalWebhook_ApplyFailureStillAcks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newTestHandlers(func(h *Handlers) {
		h.subSvc = stubSubSvc{handleEvent: func(context.Context, *payments.WebhookEvent) error {
			return errors.New("db locked")
		}}
	})

	// Genuine delivery, local failure: ack anyway, redelivery would hit the
	// same error and the upsert is idempotent once storage recovers.
	w := postWebhook(t, h, activatedEventJSON, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("apply failure -> %d, want 200 ack", w.Code)
	}
}
