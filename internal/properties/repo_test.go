package properties

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/pkg/db/dbtest"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

func TestRepositoryFindByID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	property := models.Property{
		ID:              uuid.New(),
		LandlordID:      uuid.New(),
		Title:           "Two-bed off Akoka road",
		MonthlyRent:     decimal.RequireFromString("85000.00"),
		SecurityDeposit: decimal.RequireFromString("50000.00"),
		Status:          enums.PropertyStatusActive,
	}
	require.NoError(t, conn.Create(&property).Error)

	got, err := repo.FindByID(context.Background(), property.ID)
	require.NoError(t, err)
	require.Equal(t, property.LandlordID, got.LandlordID)
	require.True(t, got.MonthlyRent.Equal(property.MonthlyRent))
	require.Equal(t, enums.PropertyStatusActive, got.Status)

	_, err = repo.FindByID(context.Background(), uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
