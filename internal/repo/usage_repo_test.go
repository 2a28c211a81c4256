package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/subtextlabs/go-subtext-backend/internal/domain"
)

func newUsageRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("usage_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGetUsagePeriod_NotFound(t *testing.T) {
	db := newUsageRepoDB(t, &domain.UsagePeriod{})
	if _, err := GetUsagePeriod(context.Background(), db, "u1", "2026-08"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOrCreateUsagePeriod_Error_NoTable(t *testing.T) {
	db := newUsageRepoDB(t /* no migrations */)
	if _, err := GetOrCreateUsagePeriod(context.Background(), db, "u1", "2026-08"); err == nil {
		t.Fatalf("expected error when table missing")
	}
}

func TestGetOrCreateUsagePeriod_CreatesThenReuses(t *testing.T) {
	db := newUsageRepoDB(t, &domain.UsagePeriod{})
	ctx := context.Background()

	p1, err := GetOrCreateUsagePeriod(ctx, db, "u1", "2026-08")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if p1.ID == "" || p1.Count != 0 || p1.Period != "2026-08" {
		t.Fatalf("unexpected fresh row: %+v", p1)
	}

	p2, err := GetOrCreateUsagePeriod(ctx, db, "u1", "2026-08")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("expected the existing row back, got %q vs %q", p2.ID, p1.ID)
	}

	// A new month starts a fresh counter.
	p3, err := GetOrCreateUsagePeriod(ctx, db, "u1", "2026-09")
	if err != nil {
		t.Fatalf("new period: %v", err)
	}
	if p3.ID == p1.ID || p3.Count != 0 {
		t.Fatalf("expected a fresh row for the new period: %+v", p3)
	}
}

func TestGetOrCreateUsagePeriod_ScopedByUser(t *testing.T) {
	db := newUsageRepoDB(t, &domain.UsagePeriod{})
	ctx := context.Background()

	a, err := GetOrCreateUsagePeriod(ctx, db, "u1", "2026-08")
	if err != nil {
		t.Fatalf("u1: %v", err)
	}
	b, err := GetOrCreateUsagePeriod(ctx, db, "u2", "2026-08")
	if err != nil {
		t.Fatalf("u2: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("counters must be per user")
	}
}

func TestSetUsageCount_SuccessAndNotFound(t *testing.T) {
	db := newUsageRepoDB(t, &domain.UsagePeriod{})
	ctx := context.Background()

	p, err := GetOrCreateUsagePeriod(ctx, db, "u1", "2026-08")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := SetUsageCount(ctx, db, p.ID, p.Count+1); err != nil {
		t.Fatalf("SetUsageCount: %v", err)
	}
	got, err := GetUsagePeriod(ctx, db, "u1", "2026-08")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Count != 1 {
		t.Fatalf("expected count 1, got %d", got.Count)
	}

	if err := SetUsageCount(ctx, db, "missing-id", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
