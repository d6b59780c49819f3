package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/pkg/config"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/money"
)

// Well-known platform setting keys.
const (
	KeyPlatformFeeRate        = "platform_fee_rate"
	KeyReviewDisclosureWindow = "review_disclosure_window"
	KeyDisputeFilingWindow    = "dispute_filing_window"
	KeyPaymentPendingTTL      = "payment_pending_ttl"
)

const cacheTTL = time.Minute

// Service reads and writes operator-tunable policy. Values are cached briefly
// so hot paths (fee split on every booking) don't hit the table each time.
type Service interface {
	FeeRate(ctx context.Context) (decimal.Decimal, error)
	ReviewDisclosureWindow(ctx context.Context) (time.Duration, error)
	DisputeFilingWindow(ctx context.Context) (time.Duration, error)
	PaymentPendingTTL(ctx context.Context) (time.Duration, error)
	List(ctx context.Context) ([]models.PlatformSetting, error)
	Update(ctx context.Context, key, value, updatedBy string) (*models.PlatformSetting, error)
}

type service struct {
	repo     Repository
	defaults config.PlatformConfig

	mtx     sync.Mutex
	cache   map[string]cachedValue
}

type cachedValue struct {
	value   string
	expires time.Time
}

// NewService builds the settings service.
func NewService(repo Repository, defaults config.PlatformConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &service{
		repo:     repo,
		defaults: defaults,
		cache:    make(map[string]cachedValue),
	}, nil
}

func (s *service) FeeRate(ctx context.Context) (decimal.Decimal, error) {
	raw, err := s.value(ctx, KeyPlatformFeeRate, s.defaults.FeeRate)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, err := money.ParseFeeRate(raw)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "platform fee rate misconfigured")
	}
	return rate, nil
}

func (s *service) ReviewDisclosureWindow(ctx context.Context) (time.Duration, error) {
	return s.durationValue(ctx, KeyReviewDisclosureWindow, s.defaults.ReviewDisclosureWindow)
}

func (s *service) DisputeFilingWindow(ctx context.Context) (time.Duration, error) {
	return s.durationValue(ctx, KeyDisputeFilingWindow, s.defaults.DisputeFilingWindow)
}

func (s *service) PaymentPendingTTL(ctx context.Context) (time.Duration, error) {
	return s.durationValue(ctx, KeyPaymentPendingTTL, s.defaults.PaymentPendingTTL)
}

func (s *service) List(ctx context.Context) ([]models.PlatformSetting, error) {
	return s.repo.List(ctx)
}

func (s *service) Update(ctx context.Context, key, value, updatedBy string) (*models.PlatformSetting, error) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "setting key and value are required")
	}
	if err := validateSetting(key, value); err != nil {
		return nil, err
	}

	row, err := s.repo.Upsert(ctx, key, value, updatedBy)
	if err != nil {
		return nil, err
	}

	s.mtx.Lock()
	delete(s.cache, key)
	s.mtx.Unlock()
	return row, nil
}

func validateSetting(key, value string) error {
	switch key {
	case KeyPlatformFeeRate:
		if _, err := money.ParseFeeRate(value); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fee rate")
		}
	case KeyReviewDisclosureWindow, KeyDisputeFilingWindow, KeyPaymentPendingTTL:
		d, err := time.ParseDuration(value)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid duration")
		}
		if d <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown setting key %q", key))
	}
	return nil
}

func (s *service) durationValue(ctx context.Context, key string, fallback time.Duration) (time.Duration, error) {
	raw, err := s.value(ctx, key, fallback.String())
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("setting %s misconfigured", key))
	}
	return d, nil
}

func (s *service) value(ctx context.Context, key, fallback string) (string, error) {
	s.mtx.Lock()
	if cached, ok := s.cache[key]; ok && time.Now().Before(cached.expires) {
		s.mtx.Unlock()
		return cached.value, nil
	}
	s.mtx.Unlock()

	row, err := s.repo.Find(ctx, key)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fallback, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading platform setting")
	}

	s.mtx.Lock()
	s.cache[key] = cachedValue{value: row.Value, expires: time.Now().Add(cacheTTL)}
	s.mtx.Unlock()
	return row.Value, nil
}
