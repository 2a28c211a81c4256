// Package services – SubscriptionService
//
// This file implements the SubscriptionService, which keeps the local
// subscriptions table in step with PayPal. Activation is pull-based (the
// client hands over a subscription id, we verify it with the provider) and
// webhook-based (provider events converge the row); both paths upsert the
// single row a user owns. Tier quotas are derived from configured plan ids.
//
// Service-level errors (ErrSubscriptionNotFound, ErrUnknownPlan, ...) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/subtextlabs/go-subtext-backend/internal/domain"
	"github.com/subtextlabs/go-subtext-backend/internal/payments"
	"github.com/subtextlabs/go-subtext-backend/internal/repo"
)

// BillingProvider defines the PayPal surface required by the
// SubscriptionService.
type BillingProvider interface {
	// GetSubscription fetches the provider's current view of a subscription.
	GetSubscription(ctx context.Context, id string) (*payments.Subscription, error)

	// CancelSubscription cancels a subscription at the provider.
	CancelSubscription(ctx context.Context, id, reason string) error
}

// PlanIDs maps configured provider plan ids to tiers.
type PlanIDs struct {
	Basic     string
	Premium   string
	Unlimited string
}

// PlanInfo is one entry of the public plan catalog.
type PlanInfo struct {
	Tier         string `json:"tier"`
	PlanID       string `json:"planId"`
	Name         string `json:"name"`
	MonthlyLimit int    `json:"monthlyLimit"`
}

// SubscriptionService manages the lifecycle of user subscriptions.
type SubscriptionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Provider is the billing provider client.
	Provider BillingProvider
	// PlanIDs holds the configured plan-to-tier mapping.
	PlanIDs PlanIDs
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, provider BillingProvider, ids PlanIDs) *SubscriptionService {
	return &SubscriptionService{DB: db, Provider: provider, PlanIDs: ids}
}

// Plans returns the public plan catalog derived from configuration. Tiers
// without a configured plan id are omitted.
func (s *SubscriptionService) Plans() []PlanInfo {
	title := cases.Title(language.English)
	out := make([]PlanInfo, 0, 3)
	for _, p := range []struct {
		tier string
		id   string
	}{
		{domain.TierBasic, s.PlanIDs.Basic},
		{domain.TierPremium, s.PlanIDs.Premium},
		{domain.TierUnlimited, s.PlanIDs.Unlimited},
	} {
		if p.id == "" {
			continue
		}
		quota, _ := domain.QuotaForTier(p.tier)
		out = append(out, PlanInfo{
			Tier:         p.tier,
			PlanID:       p.id,
			Name:         title.String(p.tier),
			MonthlyLimit: quota,
		})
	}
	return out
}

// tierFor maps a provider plan id to a tier.
func (s *SubscriptionService) tierFor(planID string) (string, bool) {
	switch planID {
	case "":
		return "", false
	case s.PlanIDs.Basic:
		return domain.TierBasic, true
	case s.PlanIDs.Premium:
		return domain.TierPremium, true
	case s.PlanIDs.Unlimited:
		return domain.TierUnlimited, true
	}
	return "", false
}

// expiryFrom converts provider billing info into the local expiry pointer.
func expiryFrom(bi *payments.BillingInfo) *time.Time {
	if bi == nil || bi.NextBillingTime.IsZero() {
		return nil
	}
	t := bi.NextBillingTime.UTC()
	return &t
}

// Create verifies subscriptionID with the provider and stores it as the
// user's active subscription. The provider must report the subscription
// ACTIVE or APPROVED, and its plan id must map to a configured tier.
func (s *SubscriptionService) Create(ctx context.Context, userID, subscriptionID string) (*domain.Subscription, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("subscription.id", subscriptionID),
		),
	)
	defer span.End()

	ps, err := s.Provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	switch ps.Status {
	case "ACTIVE", "APPROVED":
	default:
		return nil, ErrSubscriptionNotActive
	}

	tier, ok := s.tierFor(ps.PlanID)
	if !ok {
		return nil, ErrUnknownPlan
	}
	quota, _ := domain.QuotaForTier(tier)

	sub := &domain.Subscription{
		UserID:       userID,
		ExternalID:   ps.ID,
		PlanID:       ps.PlanID,
		Tier:         tier,
		Status:       domain.StatusActive,
		MonthlyLimit: quota,
		ExpiresAt:    expiryFrom(ps.BillingInfo),
	}
	if err := repo.UpsertSubscription(ctx, s.DB, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel cancels the user's subscription at the provider and marks the
// local row cancelled. A subscription the provider no longer knows is still
// cancelled locally.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, reason string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	sub, err := repo.GetSubscriptionByUserID(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSubscriptionNotFound
	}
	if err != nil {
		return err
	}

	if strings.TrimSpace(reason) == "" {
		reason = "Cancelled by user"
	}
	if err := s.Provider.CancelSubscription(ctx, sub.ExternalID, reason); err != nil && !errors.Is(err, payments.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return repo.UpdateSubscriptionStatus(ctx, s.DB, sub.ExternalID, domain.StatusCancelled)
}

// Lookup returns the user's subscription row, or ErrSubscriptionNotFound.
func (s *SubscriptionService) Lookup(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := repo.GetSubscriptionByUserID(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ActiveFor returns the user's subscription only when its status is active;
// otherwise ErrNoSubscription.
func (s *SubscriptionService) ActiveFor(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := repo.GetSubscriptionByUserID(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, ErrNoSubscription
	}
	return sub, nil
}

// HandleEvent applies one webhook event to local state. Events that cannot
// be applied cleanly (unknown plan, no user mapping) are logged and skipped
// rather than failed, so the provider does not redeliver them forever.
func (s *SubscriptionService) HandleEvent(ctx context.Context, ev *payments.WebhookEvent) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "HandleEvent",
		trace.WithAttributes(
			attribute.String("event.type", ev.EventType),
			attribute.String("subscription.id", ev.Resource.ID),
		),
	)
	defer span.End()

	switch ev.EventType {
	case payments.EventSubscriptionActivated:
		return s.applyActivation(ctx, ev)
	case payments.EventSubscriptionCancelled:
		return repo.UpdateSubscriptionStatus(ctx, s.DB, ev.Resource.ID, domain.StatusCancelled)
	case payments.EventSubscriptionSuspended:
		return repo.UpdateSubscriptionStatus(ctx, s.DB, ev.Resource.ID, domain.StatusSuspended)
	case payments.EventSubscriptionExpired:
		return repo.UpdateSubscriptionStatus(ctx, s.DB, ev.Resource.ID, domain.StatusExpired)
	case payments.EventSubscriptionRenewed:
		return repo.RenewSubscription(ctx, s.DB, ev.Resource.ID, expiryFrom(ev.Resource.BillingInfo))
	case payments.EventPaymentFailed:
		log.Warn().
			Str("subscription_id", ev.Resource.ID).
			Str("user_id", ev.Resource.CustomID).
			Msg("subscription payment failed")
		return nil
	default:
		log.Info().Str("event_type", ev.EventType).Msg("ignoring webhook event")
		return nil
	}
}

// applyActivation upserts the active row described by an ACTIVATED event.
// The user comes from resource.custom_id, falling back to an existing row
// with the same external id.
func (s *SubscriptionService) applyActivation(ctx context.Context, ev *payments.WebhookEvent) error {
	res := ev.Resource

	tier, ok := s.tierFor(res.PlanID)
	if !ok {
		log.Warn().
			Str("plan_id", res.PlanID).
			Str("subscription_id", res.ID).
			Msg("activation for unmapped plan, skipping")
		return nil
	}

	userID := res.CustomID
	if userID == "" {
		existing, err := repo.GetSubscriptionByExternalID(ctx, s.DB, res.ID)
		if err != nil {
			log.Warn().
				Str("subscription_id", res.ID).
				Msg("activation without user mapping, skipping")
			return nil
		}
		userID = existing.UserID
	}

	quota, _ := domain.QuotaForTier(tier)
	return repo.UpsertSubscription(ctx, s.DB, &domain.Subscription{
		UserID:       userID,
		ExternalID:   res.ID,
		PlanID:       res.PlanID,
		Tier:         tier,
		Status:       domain.StatusActive,
		MonthlyLimit: quota,
		ExpiresAt:    expiryFrom(res.BillingInfo),
	})
}
