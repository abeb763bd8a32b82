package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/dbtest"
	"livestock-collar-backend/internal/model"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	return dbtest.New(t)
}

func seed(t *testing.T, gormDB *gorm.DB) (model.Collar, model.Collar, model.Animal, model.Animal) {
	t.Helper()
	c1 := model.Collar{Code: "AB-1", StateID: 1}
	c2 := model.Collar{Code: "AB-2", StateID: 1}
	a1 := model.Animal{Identifier: "COW-1"}
	a2 := model.Animal{Identifier: "COW-2"}
	require.NoError(t, gormDB.Create(&c1).Error)
	require.NoError(t, gormDB.Create(&c2).Error)
	require.NoError(t, gormDB.Create(&a1).Error)
	require.NoError(t, gormDB.Create(&a2).Error)
	return c1, c2, a1, a2
}

func TestLedger_PartialIndexesRejectSecondOpenRow(t *testing.T) {
	gormDB := newSQLiteDB(t)
	c1, c2, a1, a2 := seed(t, gormDB)
	ctx := context.Background()
	l := New(nil)

	_, err := l.Open(ctx, gormDB, c1.ID, a1.ID, nil)
	require.NoError(t, err)

	_, err = l.Open(ctx, gormDB, c1.ID, a2.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict, "collar already open")

	_, err = l.Open(ctx, gormDB, c2.ID, a1.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict, "animal already open")
}

func TestLedger_CloseAllowsReopenAndKeepsHistory(t *testing.T) {
	gormDB := newSQLiteDB(t)
	c1, _, a1, a2 := seed(t, gormDB)
	ctx := context.Background()

	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})

	first, err := l.Open(ctx, gormDB, c1.ID, a1.ID, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close(ctx, gormDB, first))

	_, err = l.Open(ctx, gormDB, c1.ID, a2.ID, nil)
	require.NoError(t, err)

	open, err := l.OpenForCollar(ctx, gormDB, c1.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, a2.ID, open.AnimalID)

	var history []model.Assignment
	require.NoError(t, gormDB.Where("collar_id = ?", c1.ID).Order("id").Find(&history).Error)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsOpen(), "closed rows are kept")
	assert.True(t, history[1].IsOpen())
	assert.Equal(t, a2.ID, history[1].AnimalID)
}
