package bookings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	"github.com/campusdigs/campusdigs-backend/pkg/pagination"
)

// Expect narrows a conditional update to rows still in the states the caller read.
// An empty PaymentStatus leaves payment_status unconstrained.
type Expect struct {
	Status        enums.BookingStatus
	PaymentStatus enums.BookingPaymentStatus
}

// Repository defines persistence operations for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	CountByReferencePrefix(ctx context.Context, prefix string) (int64, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expect Expect, updates map[string]any) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error)
	List(ctx context.Context, filter listFilter) ([]models.Booking, *pagination.Cursor, error)
}

// listFilter scopes a page of bookings. Zero ids and an empty status match everything.
type listFilter struct {
	StudentID  uuid.UUID
	LandlordID uuid.UUID
	Status     enums.BookingStatus
	Limit      int
	Cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate row-locks the booking on Postgres. Other dialects fall back to a plain read.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var booking models.Booking
	if err := query.Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) CountByReferencePrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("booking_reference LIKE ?", prefix+"%").
		Count(&count).Error
	return count, err
}

// ConditionalUpdate applies updates only while the row matches expect and reports
// whether a row changed.
func (r *repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, expect Expect, updates map[string]any) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, expect.Status)
	if expect.PaymentStatus != "" {
		query = query.Where("payment_status = ?", expect.PaymentStatus)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkPaid flips payment_status pending→paid on an approved booking and stamps the
// gateway reference.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ? AND payment_status = ?", id, enums.BookingStatusApproved, enums.BookingPaymentPending).
		Updates(map[string]any{
			"payment_status":    enums.BookingPaymentPaid,
			"payment_reference": paymentReference,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]models.Booking, *pagination.Cursor, error) {
	pageSize := pagination.NormalizeLimit(filter.Limit)
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if filter.StudentID != uuid.Nil {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.LandlordID != uuid.Nil {
		query = query.Where("landlord_id = ?", filter.LandlordID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if c := filter.Cursor; c != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var rows []models.Booking
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(filter.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) <= pageSize {
		return rows, nil, nil
	}
	last := rows[pageSize-1]
	return rows[:pageSize], &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}
