package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The entities carry postgres defaults (gen_random_uuid), so the tables are
// declared by hand and every row gets its ID from the caller.
var sqliteSchema = []string{
	`CREATE TABLE mfa_configs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		method TEXT NOT NULL,
		is_enabled BOOLEAN NOT NULL DEFAULT 0,
		totp_secret TEXT,
		phone_number TEXT,
		phone_verified_at DATETIME,
		enabled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE recovery_codes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		code_hash TEXT NOT NULL,
		used_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE sms_otp_codes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		code_hash TEXT NOT NULL,
		expires_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE otp_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		method TEXT NOT NULL,
		ip_address TEXT,
		success BOOLEAN NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE mfa_audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		created_at DATETIME
	)`,
}

// baseTime is whole-second UTC; the driver stores times as text.
var baseTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "mfa.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, statement := range sqliteSchema {
		require.NoError(t, db.Exec(statement).Error)
	}
	return db
}
