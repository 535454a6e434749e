package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateSQLMigrationWritesValidFile(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Payout Accounts!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_accounts.sql") {
		t.Fatalf("unexpected filename %q", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}

	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatalf("expected error for empty slug")
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]map[string]string{
		"bad name": {"1_init.sql": "-- +goose Up\n-- +goose Down\n"},
		"no down":  {"20260301090000_init.sql": "-- +goose Up\n"},
		"duplicate": {
			"20260301090000_a.sql": "-- +goose Up\n-- +goose Down\n",
			"20260301090000_b.sql": "-- +goose Up\n-- +goose Down\n",
		},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for file, body := range files {
				if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
					t.Fatalf("write %s: %v", file, err)
				}
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
