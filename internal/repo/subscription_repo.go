// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a subscription is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertSubscription(ctx, db, sub) -> error
//     Inserts the row, or updates it in place when the user already has one.
//
//   - GetSubscriptionByUserID(ctx, db, userID) -> *domain.Subscription, error
//     Fetches the user's subscription, or ErrNotFound if missing.
//
//   - GetSubscriptionByExternalID(ctx, db, externalID) -> *domain.Subscription, error
//     Fetches by the billing provider's subscription id.
//
//   - UpdateSubscriptionStatus(ctx, db, externalID, status) -> error
//     Transitions the status of the row matching externalID.
//     Returns ErrNotFound when no row matches.
//
//   - RenewSubscription(ctx, db, externalID, expiresAt) -> error
//     Marks the subscription active again and moves its expiry forward.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.SubscriptionService) which maps provider plans to tiers
// and reacts to webhook events.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subtextlabs/go-subtext-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertSubscription inserts sub, or updates the existing row when the user
// already has one (a user holds at most one subscription). On conflict the
// original row id and CreatedAt survive; every billing field is replaced.
// Missing ID and timestamps are filled in before the write.
func UpsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"external_id", "plan_id", "tier", "status", "monthly_limit", "expires_at", "updated_at",
			}),
		}).
		Create(sub).Error
}

// GetSubscriptionByUserID fetches the subscription owned by userID. If the
// record does not exist, it returns ErrNotFound.
func GetSubscriptionByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubscriptionByExternalID fetches the subscription carrying the billing
// provider's id. If the record does not exist, it returns ErrNotFound.
func GetSubscriptionByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSubscriptionStatus transitions the status of the subscription
// matching externalID. If no rows are affected, it returns ErrNotFound.
func UpdateSubscriptionStatus(ctx context.Context, db *gorm.DB, externalID, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("external_id = ?", externalID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RenewSubscription marks the subscription matching externalID active and
// moves its expiry to expiresAt (nil clears it). If no rows are affected,
// it returns ErrNotFound.
func RenewSubscription(ctx context.Context, db *gorm.DB, externalID string, expiresAt *time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("external_id = ?", externalID).
		Updates(map[string]any{
			"status":     domain.StatusActive,
			"expires_at": expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
