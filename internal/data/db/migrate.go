package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/enneagram-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds the partial/compound indexes GORM tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_job_run_claim ON job_run(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_job_run_entity ON job_run(entity_type, entity_id, job_type);`,
		`CREATE INDEX IF NOT EXISTS idx_coupon_active_expires ON coupon(active, expires);`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
