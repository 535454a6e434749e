package settings

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
)

// Repository reads admin-managed platform settings.
type Repository interface {
	Get(ctx context.Context, key string) (*models.PlatformSetting, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, key string) (*models.PlatformSetting, error) {
	var setting models.PlatformSetting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}
