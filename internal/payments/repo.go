package payments

import (
	"context"

	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
)

// paymentReferenceIndexes names the unique index as Postgres and sqlite report it.
var paymentReferenceIndexes = []string{"ux_payments_payment_reference", "payments.payment_reference"}

// Repository persists confirmed payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}
