package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/model"
)

// Canonical collar state names, seeded once at initialization.
var CanonicalStates = []string{"available", "active", "low-battery", "defective"}

// Init opens the database, runs migrations and seeds the state catalog.
func Init(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := SeedStates(ctx, db); err != nil {
		return nil, err
	}

	log.Info("database initialization complete")
	return db, nil
}

// Open connects to postgres or sqlite depending on cfg.Driver and applies pool settings.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// Migrate creates the schema. The partial unique indexes are what keeps at most one
// open assignment per collar and per animal when several service instances race.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.CollarState{},
		&model.Collar{},
		&model.Field{},
		&model.Parcel{},
		&model.Animal{},
		&model.Assignment{},
		&model.LastKnownPosition{},
		&model.LocationSample{},
		&model.TemperatureSample{},
		&model.AccelerationSample{},
		&model.AuthorizedNode{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	ddls := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_assignments_open_collar ON assignments (collar_id) WHERE ended_at IS NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_assignments_open_animal ON assignments (animal_id) WHERE ended_at IS NULL",
	}
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

// SeedStates inserts the canonical collar states, leaving existing rows untouched.
func SeedStates(ctx context.Context, db *gorm.DB) error {
	states := make([]model.CollarState, 0, len(CanonicalStates))
	for _, name := range CanonicalStates {
		states = append(states, model.CollarState{Name: name})
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&states).Error; err != nil {
		return fmt.Errorf("seed collar states failed: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err was caused by a unique constraint or index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
