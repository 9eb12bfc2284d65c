package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	applicationName       = "groupbuy-business"
	sqliteBusyTimeoutMS   = 5000
	postgresMaxOpenConns  = 25
	postgresMaxIdleConns  = 5
	postgresConnMaxLife   = 30 * time.Minute
	pgUniqueViolationCode = "23505"
)

// Open connects to PostgreSQL or SQLite depending on the DSN shape.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if IsPostgresDSN(dsn) {
		return openPostgres(dsn, gormCfg)
	}
	return openSQLite(dsn, gormCfg)
}

// IsPostgresDSN reports whether the DSN targets PostgreSQL.
func IsPostgresDSN(dsn string) bool {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

func openPostgres(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	pgCfg, errParse := pgx.ParseConfig(dsn)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse postgres dsn: %w", errParse)
	}
	if pgCfg.RuntimeParams == nil {
		pgCfg.RuntimeParams = map[string]string{}
	}
	if _, ok := pgCfg.RuntimeParams["application_name"]; !ok {
		pgCfg.RuntimeParams["application_name"] = applicationName
	}
	sqlDB := stdlib.OpenDB(*pgCfg)
	sqlDB.SetMaxOpenConns(postgresMaxOpenConns)
	sqlDB.SetMaxIdleConns(postgresMaxIdleConns)
	sqlDB.SetConnMaxLifetime(postgresConnMaxLife)

	conn, errOpen := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	if errOpen != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open postgres: %w", errOpen)
	}
	return conn, nil
}

func openSQLite(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	conn, errOpen := gorm.Open(sqlite.Open(sqliteDSN(dsn)), gormCfg)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: sqlite handle: %w", errDB)
	}
	// SQLite allows a single writer; one connection serializes transactions.
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dsn, sep, sqliteBusyTimeoutMS)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
