package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/api"
	"livestock-collar-backend/internal/catalog"
	"livestock-collar-backend/internal/dbtest"
	"livestock-collar-backend/internal/geofence"
	"livestock-collar-backend/internal/importer"
	"livestock-collar-backend/internal/ledger"
	"livestock-collar-backend/internal/lifecycle"
	"livestock-collar-backend/internal/model"
	"livestock-collar-backend/internal/store"
	"livestock-collar-backend/internal/sweeper"
	"livestock-collar-backend/internal/telemetry"
)

const square = `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`

// dispatchRecorder stands in for the breach alert pool.
type dispatchRecorder struct {
	mu  sync.Mutex
	ids []int64
}

func (d *dispatchRecorder) Dispatch(animalID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, animalID)
}

// TestCollarLifecycle drives a collar through batch creation, assignment,
// telemetry, the battery sweep, a swap and a manual repair, checking the
// database after every step.
func TestCollarLifecycle(t *testing.T) {
	// --- Test Setup ---
	ctx := context.Background()
	log := zap.NewNop()
	testDB := dbtest.New(t)

	states, err := catalog.Load(ctx, testDB)
	require.NoError(t, err)

	appStore := store.NewGormStore(testDB)
	manager := lifecycle.New(testDB, states, ledger.New(nil), log)
	notifier := &dispatchRecorder{}
	sweep := sweeper.NewService(config.SweeperConfig{Enabled: true, LowBatteryThreshold: 15}, appStore, manager, log)

	router := api.NewRouter(api.Services{
		Store:      appStore,
		Catalog:    states,
		Manager:    manager,
		Reconciler: importer.NewReconciler(testDB, manager, nil, log),
		Details:    importer.NewDetailStore(time.Hour),
		Recorder:   telemetry.NewRecorder(testDB, telemetry.NewNodeAuthorizer(testDB), notifier, log),
		Evaluator:  geofence.New(time.Hour, log),
		Log:        log,
	}, config.ServerConfig{RateLimitPerSec: 1000, RateBurst: 1000, CacheTTLSeconds: 30})

	call := func(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, path, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	stateOf := func(id int64) string {
		t.Helper()
		view, err := appStore.GetCollar(ctx, id)
		require.NoError(t, err)
		return view.State
	}

	parcel := dbtest.Parcel(t, testDB, square)
	cow := dbtest.Animal(t, testDB, "COW-1", &parcel.ID)

	// --- Step 1: batch creation ---
	w := call(http.MethodPost, "/api/collars/batch", map[string]any{"base": "AB", "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var collars []model.Collar
	require.NoError(t, testDB.Order("code").Find(&collars).Error)
	require.Len(t, collars, 2)
	first, second := collars[0], collars[1]
	assert.Equal(t, "AB-1", first.Code)
	assert.Equal(t, "AB-2", second.Code)

	// --- Step 2: assign AB-1 ---
	w = call(http.MethodPut, fmt.Sprintf("/api/collars/%d/assignment", first.ID), map[string]any{"animalId": cow.ID}, "X-User-ID", "3")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "active", stateOf(first.ID))

	// --- Step 3: the node reports a drained battery and a fix outside the parcel ---
	require.NoError(t, testDB.Omit("Collar").Create(&model.AuthorizedNode{ClientID: "gw-1", Authorized: true, CollarID: &first.ID}).Error)
	w = call(http.MethodPost, "/api/telemetry", map[string]any{
		"position": map[string]any{"lat": 20, "lon": 20},
		"battery":  9,
	}, api.ClientIDHeader, "gw-1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, []int64{cow.ID}, notifier.ids)

	subject, err := appStore.AnimalSubject(ctx, cow.ID)
	require.NoError(t, err)
	assert.Equal(t, geofence.Outside, geofence.New(time.Hour, log).Classify(*subject))

	// --- Step 4: the sweep marks AB-1 low-battery and keeps it on the animal ---
	assert.Equal(t, 1, sweep.SweepOnce(ctx))
	assert.Equal(t, "low-battery", stateOf(first.ID))
	assert.Equal(t, 0, sweep.SweepOnce(ctx))

	view, err := appStore.GetCollar(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, view.AnimalID)
	assert.Equal(t, cow.ID, *view.AnimalID)

	// --- Step 5: swap in AB-2; the drained collar keeps its sticky state ---
	w = call(http.MethodPut, fmt.Sprintf("/api/collars/%d/assignment", second.ID), map[string]any{"animalId": cow.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var swap struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &swap))
	assert.Equal(t, "assigned to COW-1; replaced collar AB-1", swap.Summary)

	assert.Equal(t, "active", stateOf(second.ID))
	assert.Equal(t, "low-battery", stateOf(first.ID))

	var open int64
	require.NoError(t, testDB.Model(&model.Assignment{}).Where("animal_id = ? AND ended_at IS NULL", cow.ID).Count(&open).Error)
	assert.Equal(t, int64(1), open)

	// --- Step 6: the operator recharges AB-1 and puts it back in stock ---
	w = call(http.MethodPatch, fmt.Sprintf("/api/collars/%d", first.ID), map[string]any{"state": "available", "battery": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "available", stateOf(first.ID))

	w = call(http.MethodGet, "/api/collars/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var available []store.CollarView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &available))
	require.Len(t, available, 1)
	assert.Equal(t, "AB-1", available[0].Code)

	// --- Step 7: AB-1 history shows the closed assignment with its actor ---
	history, err := appStore.AssignmentHistory(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].EndedAt)
	require.NotNil(t, history[0].ActorID)
	assert.Equal(t, int64(3), *history[0].ActorID)
}
