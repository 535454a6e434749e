package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/campusdigs/campusdigs-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestBookingsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_bookings")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS bookings",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_booking_reference",
		"CHECK (total_amount = monthly_rent * lease_duration_months + security_deposit)",
		"status booking_status NOT NULL DEFAULT 'pending'",
		"DROP TABLE IF EXISTS bookings",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationGuardsDuplicateReferences(t *testing.T) {
	content := readMigration(t, "create_payments")
	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_payment_reference ON payments (payment_reference)") {
		t.Fatalf("payments migration must enforce one row per reference")
	}
}

func TestMigrationDirectoryIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}
