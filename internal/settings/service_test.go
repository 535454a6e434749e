package settings

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/campusdigs/campusdigs-backend/pkg/db/dbtest"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
)

func TestCommissionRate(t *testing.T) {
	fallback := decimal.RequireFromString("0.10")

	tests := []struct {
		name  string
		value *string
		want  string
	}{
		{name: "missing row uses default", want: "0.10"},
		{name: "stored rate wins", value: strPtr("0.075"), want: "0.075"},
		{name: "unparsable value uses default", value: strPtr("ten percent"), want: "0.10"},
		{name: "out of range value uses default", value: strPtr("1.5"), want: "0.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dbtest.Open(t)
			if tt.value != nil {
				require.NoError(t, conn.Create(&models.PlatformSetting{Key: KeyCommissionRate, Value: *tt.value}).Error)
			}
			svc, err := NewService(NewRepository(conn), fallback, nil)
			require.NoError(t, err)

			got, err := svc.CommissionRate(context.Background())
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestNewServiceRejectsInvalidDefault(t *testing.T) {
	_, err := NewService(NewRepository(dbtest.Open(t)), decimal.NewFromInt(2), nil)
	require.Error(t, err)
}

func strPtr(v string) *string { return &v }
