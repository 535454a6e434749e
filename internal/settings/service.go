// Package settings resolves platform settings with configured fallbacks.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/internal/commission"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

// KeyCommissionRate holds the platform's share of rent as a fraction in [0,1].
const KeyCommissionRate = "commission_rate"

type Service struct {
	repo        Repository
	defaultRate decimal.Decimal
	logg        *logger.Logger
}

func NewService(repo Repository, defaultRate decimal.Decimal, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if err := commission.ValidateRate(defaultRate); err != nil {
		return nil, fmt.Errorf("default commission rate: %w", err)
	}
	return &Service{repo: repo, defaultRate: defaultRate, logg: logg}, nil
}

// CommissionRate returns the stored rate, or the configured default when the row is
// missing or holds an unusable value. Only storage failures are returned as errors.
func (s *Service) CommissionRate(ctx context.Context) (decimal.Decimal, error) {
	setting, err := s.repo.Get(ctx, KeyCommissionRate)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.defaultRate, nil
		}
		return decimal.Zero, fmt.Errorf("load %s: %w", KeyCommissionRate, err)
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(setting.Value))
	if err == nil {
		err = commission.ValidateRate(rate)
	}
	if err != nil {
		if s.logg != nil {
			ctx = s.logg.WithField(ctx, "value", setting.Value)
			s.logg.Warn(ctx, "ignoring invalid commission_rate setting")
		}
		return s.defaultRate, nil
	}
	return rate, nil
}
