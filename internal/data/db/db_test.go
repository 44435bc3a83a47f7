package db

import (
	"testing"

	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	svc, err := Open(logger.Nop(), Config{Driver: "sqlite3", DSN: "file:dbtest?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close()
	if svc.Driver() != DriverSQLite {
		t.Fatalf("driver: %q", svc.Driver())
	}
	if err := AutoMigrateAll(svc.DB()); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	// idempotent
	if err := AutoMigrateAll(svc.DB()); err != nil {
		t.Fatalf("second AutoMigrateAll: %v", err)
	}
	for _, table := range []string{"respondent", "assessment", "type_result", "payment", "analysis", "valid_email", "coupon", "job_run"} {
		if !svc.DB().Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(logger.Nop(), Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
