// Package payments is a client for the PayPal REST API covering the pieces
// the billing flow needs: OAuth token management, subscription lookup and
// cancellation, and webhook signature verification. Webhook payload types
// and event names live here too so the HTTP layer and services share one
// vocabulary.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Subscription event types delivered by PayPal webhooks.
const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
	EventSubscriptionRenewed   = "BILLING.SUBSCRIPTION.RENEWED"
	EventPaymentFailed         = "BILLING.SUBSCRIPTION.PAYMENT.FAILED"
)

// ErrNotFound is returned when PayPal does not know the subscription id.
var ErrNotFound = errors.New("payments: subscription not found")

// Fetch a fresh OAuth token this long before the cached one expires.
const tokenSlack = 60 * time.Second

// Subscriber identifies the paying account on a subscription.
type Subscriber struct {
	EmailAddress string `json:"email_address"`
	PayerID      string `json:"payer_id"`
}

// BillingInfo carries the schedule fields the status endpoint surfaces.
type BillingInfo struct {
	NextBillingTime time.Time `json:"next_billing_time"`
}

// Subscription is PayPal's view of a billing agreement.
type Subscription struct {
	ID          string       `json:"id"`
	PlanID      string       `json:"plan_id"`
	Status      string       `json:"status"`
	CustomID    string       `json:"custom_id"`
	Subscriber  Subscriber   `json:"subscriber"`
	BillingInfo *BillingInfo `json:"billing_info,omitempty"`
}

// WebhookResource is the resource object embedded in subscription webhook
// events. CustomID carries the local user id attached at subscription
// creation.
type WebhookResource struct {
	ID          string       `json:"id"`
	PlanID      string       `json:"plan_id"`
	Status      string       `json:"status"`
	CustomID    string       `json:"custom_id"`
	Subscriber  Subscriber   `json:"subscriber"`
	BillingInfo *BillingInfo `json:"billing_info,omitempty"`
}

// WebhookEvent is a parsed webhook delivery.
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	CreateTime   time.Time       `json:"create_time"`
	Resource     WebhookResource `json:"resource"`
}

// ParseEvent decodes a webhook delivery body.
func ParseEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("payments: parse webhook event: %w", err)
	}
	if ev.EventType == "" {
		return nil, errors.New("payments: webhook event missing event_type")
	}
	return &ev, nil
}

// WebhookProof bundles the signature headers PayPal sends with each
// delivery.
type WebhookProof struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

// ProofFromHeaders extracts the signature proof from delivery headers.
func ProofFromHeaders(h http.Header) WebhookProof {
	return WebhookProof{
		TransmissionID:   h.Get("Paypal-Transmission-Id"),
		TransmissionTime: h.Get("Paypal-Transmission-Time"),
		TransmissionSig:  h.Get("Paypal-Transmission-Sig"),
		CertURL:          h.Get("Paypal-Cert-Url"),
		AuthAlgo:         h.Get("Paypal-Auth-Algo"),
	}
}

// Options configures a Client.
type Options struct {
	ClientID  string
	Secret    string
	Mode      string // sandbox or live
	WebhookID string // empty disables signature verification
	BaseURL   string // optional endpoint override
	Timeout   time.Duration
}

// Client calls the PayPal REST API. OAuth tokens are cached and refreshed
// shortly before expiry; the Client is safe for concurrent use.
type Client struct {
	client    *resty.Client
	clientID  string
	secret    string
	webhookID string

	mu     sync.Mutex
	tok    string
	expiry time.Time
}

// New builds a Client. Options.BaseURL overrides the mode-derived endpoint.
func New(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = "https://api-m.sandbox.paypal.com"
		if opts.Mode == "live" {
			base = "https://api-m.paypal.com"
		}
	}
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout)
	return &Client{
		client:    rc,
		clientID:  opts.ClientID,
		secret:    opts.Secret,
		webhookID: opts.WebhookID,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid OAuth access token, fetching a new one when the
// cached token is absent or close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok != "" && time.Until(c.expiry) > tokenSlack {
		return c.tok, nil
	}

	var out tokenResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.secret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || out.AccessToken == "" {
		return "", fmt.Errorf("paypal token status %d: %s", resp.StatusCode(), resp.String())
	}

	c.tok = out.AccessToken
	c.expiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.tok, nil
}

// GetSubscription fetches the current state of a subscription.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var out Subscription
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetResult(&out).
		Get("/v1/billing/subscriptions/" + id)
	if err != nil {
		return nil, fmt.Errorf("paypal get subscription: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return &out, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("paypal get subscription status %d: %s", resp.StatusCode(), resp.String())
}

// CancelSubscription cancels a subscription with the given reason. PayPal
// answers 204 on success.
func (c *Client) CancelSubscription(ctx context.Context, id, reason string) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(map[string]string{"reason": reason}).
		Post("/v1/billing/subscriptions/" + id + "/cancel")
	if err != nil {
		return fmt.Errorf("paypal cancel subscription: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	}
	return fmt.Errorf("paypal cancel subscription status %d: %s", resp.StatusCode(), resp.String())
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal whether a delivery is authentic. With
// no webhook id configured, verification is skipped and the delivery is
// accepted. The returned bool is the verdict; the error covers transport
// and API failures only.
func (c *Client) VerifyWebhookSignature(ctx context.Context, proof WebhookProof, rawEvent []byte) (bool, error) {
	if c.webhookID == "" {
		return true, nil
	}

	tok, err := c.token(ctx)
	if err != nil {
		return false, err
	}

	var out verifyResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetBody(verifyRequest{
			AuthAlgo:         proof.AuthAlgo,
			CertURL:          proof.CertURL,
			TransmissionID:   proof.TransmissionID,
			TransmissionSig:  proof.TransmissionSig,
			TransmissionTime: proof.TransmissionTime,
			WebhookID:        c.webhookID,
			WebhookEvent:     rawEvent,
		}).
		SetResult(&out).
		Post("/v1/notification/verify-webhook-signature")
	if err != nil {
		return false, fmt.Errorf("paypal verify webhook: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("paypal verify webhook status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.VerificationStatus == "SUCCESS", nil
}
