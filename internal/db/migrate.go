package db

import (
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func autoMigrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Group{},
		&models.GroupMember{},
		&models.Notification{},
		&models.RefreshToken{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// ensureActiveMemberIndex keeps at most one active membership per (group, user).
func ensureActiveMemberIndex(conn *gorm.DB) error {
	if errIdx := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_group_members_active
		ON group_members (group_id, user_id)
		WHERE left_at IS NULL
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create active member index: %w", errIdx)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_group_members_refund
		ON group_members (deposit_status, final_payment_status)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create refund index: %w", errIdx)
	}
	return nil
}

// migratePostgres applies PostgreSQL-specific schema updates and constraints.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	if errIdx := ensureActiveMemberIndex(conn); errIdx != nil {
		return errIdx
	}
	if errCapacity := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_buying_groups_capacity'
			) THEN
				ALTER TABLE buying_groups
				ADD CONSTRAINT chk_buying_groups_capacity
				CHECK (current_participants >= 0 AND current_participants <= max_participants);
			END IF;
		END $$;
	`).Error; errCapacity != nil {
		return fmt.Errorf("db: add capacity constraint: %w", errCapacity)
	}
	if errCurve := conn.Exec(`
		ALTER TABLE buying_groups
		ALTER COLUMN discount_curve SET DEFAULT '[]'::jsonb
	`).Error; errCurve != nil {
		return fmt.Errorf("db: default discount curve: %w", errCurve)
	}
	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
// SQLite cannot add CHECK constraints to an existing table, so capacity is
// enforced by the conditional updates alone.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}
	return ensureActiveMemberIndex(conn)
}
