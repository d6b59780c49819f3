package settings

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/pkg/config"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
)

type fakeRepository struct {
	findFn   func(ctx context.Context, key string) (*models.PlatformSetting, error)
	upsertFn func(ctx context.Context, key, value, updatedBy string) (*models.PlatformSetting, error)
	finds    int
}

func (f *fakeRepository) Find(ctx context.Context, key string) (*models.PlatformSetting, error) {
	f.finds++
	if f.findFn != nil {
		return f.findFn(ctx, key)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) List(ctx context.Context) ([]models.PlatformSetting, error) {
	return nil, nil
}

func (f *fakeRepository) Upsert(ctx context.Context, key, value, updatedBy string) (*models.PlatformSetting, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, key, value, updatedBy)
	}
	return &models.PlatformSetting{Key: key, Value: value}, nil
}

func defaults() config.PlatformConfig {
	return config.PlatformConfig{
		FeeRate:                "0.10",
		ReviewDisclosureWindow: 14 * 24 * time.Hour,
		DisputeFilingWindow:    7 * 24 * time.Hour,
		PaymentPendingTTL:      24 * time.Hour,
	}
}

func TestService_FeeRateDefault(t *testing.T) {
	svc, err := NewService(&fakeRepository{}, defaults())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	rate, err := svc.FeeRate(context.Background())
	if err != nil {
		t.Fatalf("FeeRate error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("expected env default 0.10, got %s", rate)
	}
}

func TestService_FeeRateFromTable(t *testing.T) {
	repo := &fakeRepository{
		findFn: func(ctx context.Context, key string) (*models.PlatformSetting, error) {
			return &models.PlatformSetting{Key: key, Value: "0.15"}, nil
		},
	}
	svc, err := NewService(repo, defaults())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	rate, err := svc.FeeRate(context.Background())
	if err != nil {
		t.Fatalf("FeeRate error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("table value must win over the env default, got %s", rate)
	}
}

func TestService_ValueCached(t *testing.T) {
	repo := &fakeRepository{
		findFn: func(ctx context.Context, key string) (*models.PlatformSetting, error) {
			return &models.PlatformSetting{Key: key, Value: "48h"}, nil
		},
	}
	svc, err := NewService(repo, defaults())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	for i := 0; i < 3; i++ {
		window, err := svc.DisputeFilingWindow(context.Background())
		if err != nil {
			t.Fatalf("DisputeFilingWindow error: %v", err)
		}
		if window != 48*time.Hour {
			t.Fatalf("expected 48h, got %s", window)
		}
	}
	if repo.finds != 1 {
		t.Fatalf("expected one repository read, got %d", repo.finds)
	}
}

func TestService_UpdateInvalidatesCache(t *testing.T) {
	value := "336h"
	repo := &fakeRepository{}
	repo.findFn = func(ctx context.Context, key string) (*models.PlatformSetting, error) {
		return &models.PlatformSetting{Key: key, Value: value}, nil
	}
	svc, err := NewService(repo, defaults())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	if _, err := svc.ReviewDisclosureWindow(context.Background()); err != nil {
		t.Fatalf("ReviewDisclosureWindow error: %v", err)
	}

	value = "240h"
	if _, err := svc.Update(context.Background(), KeyReviewDisclosureWindow, value, "admin@test"); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	window, err := svc.ReviewDisclosureWindow(context.Background())
	if err != nil {
		t.Fatalf("ReviewDisclosureWindow error: %v", err)
	}
	if window != 240*time.Hour {
		t.Fatalf("update must take effect without restart, got %s", window)
	}
	if repo.finds != 2 {
		t.Fatalf("expected a fresh read after update, got %d reads", repo.finds)
	}
}

func TestService_UpdateValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{}, defaults())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown key", key: "max_bookings", value: "5"},
		{name: "empty value", key: KeyPlatformFeeRate, value: "  "},
		{name: "bad fee rate", key: KeyPlatformFeeRate, value: "ten percent"},
		{name: "bad duration", key: KeyPaymentPendingTTL, value: "1 day"},
		{name: "negative duration", key: KeyDisputeFilingWindow, value: "-24h"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tc.key, tc.value, "admin@test")
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
