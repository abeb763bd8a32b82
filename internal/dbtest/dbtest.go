// Package dbtest provides migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/db"
	"livestock-collar-backend/internal/model"
)

var seq atomic.Int64

// New opens a private in-memory database with the full schema and the state
// catalog seeded. A single connection serves every caller, so concurrent
// transactions queue instead of failing with SQLITE_BUSY.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1)),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
	gormDB, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.SeedStates(context.Background(), gormDB); err != nil {
		t.Fatalf("seed states: %v", err)
	}
	return gormDB
}

// StateID returns the id of a seeded state.
func StateID(t testing.TB, gormDB *gorm.DB, name string) int64 {
	t.Helper()
	var state model.CollarState
	if err := gormDB.Where("name = ?", name).First(&state).Error; err != nil {
		t.Fatalf("state %q: %v", name, err)
	}
	return state.ID
}

// Animal inserts an animal, optionally inside a parcel.
func Animal(t testing.TB, gormDB *gorm.DB, identifier string, parcelID *int64) model.Animal {
	t.Helper()
	a := model.Animal{Identifier: identifier, Name: identifier, ParcelID: parcelID}
	if err := gormDB.Omit("Parcel").Create(&a).Error; err != nil {
		t.Fatalf("create animal %s: %v", identifier, err)
	}
	return a
}

// Parcel inserts a field and a parcel with the given GeoJSON boundary.
func Parcel(t testing.TB, gormDB *gorm.DB, boundary string) model.Parcel {
	t.Helper()
	field := model.Field{Name: "field"}
	if err := gormDB.Omit("Parcels").Create(&field).Error; err != nil {
		t.Fatalf("create field: %v", err)
	}
	p := model.Parcel{FieldID: field.ID, Name: "parcel"}
	if boundary != "" {
		p.Boundary = []byte(boundary)
	}
	if err := gormDB.Omit("Field").Create(&p).Error; err != nil {
		t.Fatalf("create parcel: %v", err)
	}
	return p
}
