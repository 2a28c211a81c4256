// Package domain defines the persistence models for subscriptions and
// monthly usage, plus the tier/quota rules shared by the service layer.
// These types are mapped with GORM and form the core data layer of the
// Subtext backend.
package domain

import (
	"time"
)

// Subscription tiers. The tier is derived from the PayPal plan id the
// subscriber approved, never from client input.
const (
	TierBasic     = "basic"
	TierPremium   = "premium"
	TierUnlimited = "unlimited"
)

// Subscription statuses mirrored from the billing provider.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusSuspended = "suspended"
	StatusExpired   = "expired"
)

// UnlimitedQuota is the MonthlyLimit sentinel meaning "no cap".
const UnlimitedQuota = -1

// QuotaForTier returns the monthly request quota for a tier and whether
// the tier is known.
func QuotaForTier(tier string) (int, bool) {
	switch tier {
	case TierBasic:
		return 100, true
	case TierPremium:
		return 400, true
	case TierUnlimited:
		return UnlimitedQuota, true
	default:
		return 0, false
	}
}

// PeriodFor returns the usage period key ("YYYY-MM", UTC) for t.
func PeriodFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Subscription is the local mirror of a user's billing state. There is at
// most one row per user (user_id unique); webhook events and checkout
// verification upsert into it.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identity from the auth provider; unique, one row per user.
//   - ExternalID: PayPal subscription id (I-XXXX…); indexed for webhook lookups.
//   - PlanID: PayPal plan id the subscriber approved.
//   - Tier: basic|premium|unlimited, derived from PlanID.
//   - Status: active|cancelled|suspended|expired, driven by provider events.
//   - MonthlyLimit: quota for the tier; UnlimitedQuota (-1) means no cap.
//   - ExpiresAt: next billing time reported by the provider (advisory).
type Subscription struct {
	ID           string     `json:"-"              gorm:"type:char(36);primaryKey"`
	UserID       string     `json:"-"              gorm:"type:varchar(64);not null;uniqueIndex:ux_subscriptions_user"`
	ExternalID   string     `json:"subscriptionId" gorm:"type:varchar(64);not null;index:idx_subscriptions_external"`
	PlanID       string     `json:"planId"         gorm:"type:varchar(64);not null"`
	Tier         string     `json:"tier"           gorm:"type:varchar(16);not null;check:tier IN ('basic','premium','unlimited')"`
	Status       string     `json:"status"         gorm:"type:varchar(16);not null;check:status IN ('active','cancelled','suspended','expired')"`
	MonthlyLimit int        `json:"monthlyLimit"   gorm:"not null"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether the subscription grants access right now.
// Status alone decides: provider events drive transitions, and ExpiresAt
// is advisory (a missed renewal webhook must not lock out a payer).
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// UsagePeriod is a monthly request counter for one user. Rows are created
// lazily at count 0 the first time a period is read.
//
// The (user_id, period) pair is indexed but deliberately NOT unique: the
// accountant increments with a plain read-then-write, and under concurrent
// first-of-month traffic that can race into a duplicate row or a lost
// update. The billing model tolerates both; a unique constraint would turn
// the race into request failures instead.
type UsagePeriod struct {
	ID        string    `json:"-"      gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"-"      gorm:"type:varchar(64);not null;index:idx_usage_user_period,priority:1"`
	Period    string    `json:"period" gorm:"type:char(7);not null;index:idx_usage_user_period,priority:2"`
	Count     int       `json:"count"  gorm:"not null;default:0"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for UsagePeriod.
func (UsagePeriod) TableName() string { return "usage_periods" }
