package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/dbtest"
	"livestock-collar-backend/internal/ledger"
	"livestock-collar-backend/internal/model"
)

type recordingNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (n *recordingNotifier) Dispatch(animalID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, animalID)
}

func seedCollar(t *testing.T, gormDB *gorm.DB, code string) model.Collar {
	t.Helper()
	c := model.Collar{Code: code, StateID: dbtest.StateID(t, gormDB, "available")}
	require.NoError(t, gormDB.Omit("State").Create(&c).Error)
	return c
}

func assign(t *testing.T, gormDB *gorm.DB, collarID, animalID int64) {
	t.Helper()
	_, err := ledger.New(nil).Open(context.Background(), gormDB, collarID, animalID, nil)
	require.NoError(t, err)
}

func TestRecorder_AssignedCollar(t *testing.T) {
	gormDB := dbtest.New(t)
	collar := seedCollar(t, gormDB, "AB-1")
	cow := dbtest.Animal(t, gormDB, "COW-1", nil)
	assign(t, gormDB, collar.ID, cow.ID)

	notifier := &recordingNotifier{}
	r := NewRecorder(gormDB, AllowAll{}, notifier, zap.NewNop())
	ctx := context.Background()

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	battery := 55.0
	res, err := r.Record(ctx, Sample{
		CollarCode:   "ab-1",
		Timestamp:    first,
		Position:     &Position{Lat: -35.5, Lon: -60.3},
		Temperature:  &Temperature{Body: 38.6},
		Acceleration: &Acceleration{X: 0.1, Y: 0.2, Z: 9.8},
		Battery:      &battery,
	})
	require.NoError(t, err)
	assert.True(t, res.Location)
	assert.True(t, res.Temperature)
	assert.True(t, res.Acceleration)
	require.NotNil(t, res.AnimalID)
	assert.Equal(t, cow.ID, *res.AnimalID)

	_, err = r.Record(ctx, Sample{
		CollarCode: "AB-1",
		Timestamp:  first.Add(time.Minute),
		Position:   &Position{Lat: -35.6, Lon: -60.4},
	})
	require.NoError(t, err)

	var positions []model.LastKnownPosition
	require.NoError(t, gormDB.Find(&positions).Error)
	require.Len(t, positions, 1, "one row per animal")
	assert.Equal(t, -35.6, positions[0].Lat)

	var locations int64
	require.NoError(t, gormDB.Model(&model.LocationSample{}).Count(&locations).Error)
	assert.Equal(t, int64(2), locations)

	var stored model.Collar
	require.NoError(t, gormDB.First(&stored, collar.ID).Error)
	require.NotNil(t, stored.Battery)
	assert.Equal(t, 55.0, *stored.Battery)
	require.NotNil(t, stored.LastActivity)
	assert.True(t, first.Add(time.Minute).Equal(*stored.LastActivity))

	assert.Equal(t, []int64{cow.ID, cow.ID}, notifier.ids)
}

func TestRecorder_UnassignedCollar(t *testing.T) {
	gormDB := dbtest.New(t)
	seedCollar(t, gormDB, "AB-1")
	notifier := &recordingNotifier{}
	r := NewRecorder(gormDB, AllowAll{}, notifier, zap.NewNop())

	res, err := r.Record(context.Background(), Sample{
		CollarCode:   "AB-1",
		Position:     &Position{Lat: 1, Lon: 2},
		Temperature:  &Temperature{Body: 39},
		Acceleration: &Acceleration{Z: 1},
	})
	require.NoError(t, err)
	assert.True(t, res.Location)
	assert.False(t, res.Temperature, "temperature needs an assigned animal")
	assert.True(t, res.Acceleration)
	assert.Nil(t, res.AnimalID)

	var temps, lastKnown int64
	require.NoError(t, gormDB.Model(&model.TemperatureSample{}).Count(&temps).Error)
	require.NoError(t, gormDB.Model(&model.LastKnownPosition{}).Count(&lastKnown).Error)
	assert.Zero(t, temps)
	assert.Zero(t, lastKnown)
	assert.Empty(t, notifier.ids)
}

func TestRecorder_Rejections(t *testing.T) {
	gormDB := dbtest.New(t)
	seedCollar(t, gormDB, "AB-1")
	r := NewRecorder(gormDB, AllowAll{}, nil, zap.NewNop())
	ctx := context.Background()
	over := 101.0

	testCases := []struct {
		name      string
		sample    Sample
		expectErr error
	}{
		{name: "unknown collar", sample: Sample{CollarCode: "ZZ-9"}, expectErr: apperr.ErrNotFound},
		{name: "missing code", sample: Sample{}, expectErr: ErrUnauthorized},
		{name: "battery out of range", sample: Sample{CollarCode: "AB-1", Battery: &over}, expectErr: apperr.ErrValidation},
		{name: "latitude out of range", sample: Sample{CollarCode: "AB-1", Position: &Position{Lat: 91}}, expectErr: apperr.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Record(ctx, tc.sample)
			assert.ErrorIs(t, err, tc.expectErr)
		})
	}
}

func TestNodeAuthorizer(t *testing.T) {
	gormDB := dbtest.New(t)
	collar := seedCollar(t, gormDB, "AB-1")
	require.NoError(t, gormDB.Omit("Collar").Create(&model.AuthorizedNode{ClientID: "node-1", Authorized: true, CollarID: &collar.ID}).Error)
	require.NoError(t, gormDB.Omit("Collar").Create(&model.AuthorizedNode{ClientID: "node-2", Authorized: false, CollarID: &collar.ID}).Error)

	auth := NewNodeAuthorizer(gormDB)
	ctx := context.Background()

	code, err := auth.Authorize(ctx, "node-1", "")
	require.NoError(t, err)
	assert.Equal(t, "AB-1", code)

	code, err = auth.Authorize(ctx, "node-1", "ab-1")
	require.NoError(t, err)
	assert.Equal(t, "AB-1", code)

	_, err = auth.Authorize(ctx, "node-1", "AB-2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = auth.Authorize(ctx, "node-2", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = auth.Authorize(ctx, "ghost", "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
