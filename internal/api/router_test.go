package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/catalog"
	"livestock-collar-backend/internal/dbtest"
	"livestock-collar-backend/internal/geofence"
	"livestock-collar-backend/internal/importer"
	"livestock-collar-backend/internal/ledger"
	"livestock-collar-backend/internal/lifecycle"
	"livestock-collar-backend/internal/store"
	"livestock-collar-backend/internal/telemetry"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	svc    Services
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB := dbtest.New(t)
	cat, err := catalog.Load(context.Background(), gormDB)
	require.NoError(t, err)

	log := zap.NewNop()
	manager := lifecycle.New(gormDB, cat, ledger.New(nil), log)
	svc := Services{
		Store:      store.NewGormStore(gormDB),
		Catalog:    cat,
		Manager:    manager,
		Reconciler: importer.NewReconciler(gormDB, manager, nil, log),
		Details:    importer.NewDetailStore(time.Hour),
		Recorder:   telemetry.NewRecorder(gormDB, telemetry.NewNodeAuthorizer(gormDB), nil, log),
		Evaluator:  geofence.New(0, log),
		Log:        log,
	}
	router := NewRouter(svc, config.ServerConfig{
		RateLimitPerSec: 1000,
		RateBurst:       1000,
		CacheTTLSeconds: 30,
		MaxUploadBytes:  1 << 20,
	})
	return testServer{router: router, db: gormDB, svc: svc}
}

func (s testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
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
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
