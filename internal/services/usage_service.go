// Package services – UsageService
//
// This file implements the UsageService, the monthly metering layer behind
// the OCR endpoint. Counters are per (user, calendar month, UTC) and created
// lazily on first use; incrementing is a deliberate read-then-write so a
// rare concurrent request can cost a lost update rather than a failed
// response. The async variant runs after the response is already on the
// wire and only logs failures.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/subtextlabs/go-subtext-backend/internal/domain"
	"github.com/subtextlabs/go-subtext-backend/internal/repo"
)

// UsageService tracks how many metered requests a user made this month.
type UsageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// IncrementTimeout bounds the background write of IncrementAsync.
	IncrementTimeout time.Duration
}

// NewUsageService constructs a UsageService with a sane background timeout.
func NewUsageService(db *gorm.DB) *UsageService {
	return &UsageService{DB: db, IncrementTimeout: 5 * time.Second}
}

// CurrentUsage returns the user's counter for the current UTC month,
// creating a zero-count row on first use.
func (s *UsageService) CurrentUsage(ctx context.Context, userID string) (*domain.UsagePeriod, error) {
	tr := otel.Tracer("services/UsageService")
	ctx, span := tr.Start(ctx, "CurrentUsage",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.GetOrCreateUsagePeriod(ctx, s.DB, userID, domain.PeriodFor(time.Now()))
}

// Increment adds one to the current month's counter. The read-then-write is
// not atomic; concurrent increments may collapse into one.
func (s *UsageService) Increment(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/UsageService")
	ctx, span := tr.Start(ctx, "Increment",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	p, err := repo.GetOrCreateUsagePeriod(ctx, s.DB, userID, domain.PeriodFor(time.Now()))
	if err != nil {
		return err
	}
	return repo.SetUsageCount(ctx, s.DB, p.ID, p.Count+1)
}

// IncrementAsync runs Increment on a background context so the caller's
// response never waits on metering. Failures are logged and dropped.
func (s *UsageService) IncrementAsync(userID string) {
	go func() {
		timeout := s.IncrementTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.Increment(ctx, userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("usage increment failed")
		}
	}()
}

// LimitReached reports whether the user is out of quota for the current
// month. A user without any subscription row counts as limit-reached; the
// unlimited sentinel never does.
func (s *UsageService) LimitReached(ctx context.Context, userID string) (bool, error) {
	tr := otel.Tracer("services/UsageService")
	ctx, span := tr.Start(ctx, "LimitReached",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	sub, err := repo.GetSubscriptionByUserID(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if sub.MonthlyLimit == domain.UnlimitedQuota {
		return false, nil
	}

	p, err := repo.GetOrCreateUsagePeriod(ctx, s.DB, userID, domain.PeriodFor(time.Now()))
	if err != nil {
		return false, err
	}
	return p.Count >= sub.MonthlyLimit, nil
}
