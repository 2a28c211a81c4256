// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the UsagePeriod
// model, the per-user monthly request counter.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/subtextlabs/go-subtext-backend/internal/domain"
)

// GetUsagePeriod returns the user's counter row for period (YYYY-MM), or
// ErrNotFound when the user has not been metered this period yet.
func GetUsagePeriod(ctx context.Context, db *gorm.DB, userID, period string) (*domain.UsagePeriod, error) {
	var p domain.UsagePeriod
	err := db.WithContext(ctx).
		Where("user_id = ? AND period = ?", userID, period).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateUsagePeriod returns the user's counter row for period, creating
// a zero-count row on the first request of a period. Counting is
// read-then-write; concurrent first requests may seed duplicate rows and
// reads then settle on the earliest one.
func GetOrCreateUsagePeriod(ctx context.Context, db *gorm.DB, userID, period string) (*domain.UsagePeriod, error) {
	p, err := GetUsagePeriod(ctx, db, userID, period)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := &domain.UsagePeriod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Period:    period,
		Count:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(fresh).Error; err != nil {
		return nil, err
	}
	return fresh, nil
}

// SetUsageCount overwrites the counter of the row identified by id. If no
// rows are affected, it returns ErrNotFound.
func SetUsageCount(ctx context.Context, db *gorm.DB, id string, count int) error {
	res := db.WithContext(ctx).
		Model(&domain.UsagePeriod{}).
		Where("id = ?", id).
		Update("count", count)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
