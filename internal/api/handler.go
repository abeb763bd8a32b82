package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/catalog"
	"livestock-collar-backend/internal/geofence"
	"livestock-collar-backend/internal/importer"
	"livestock-collar-backend/internal/lifecycle"
	"livestock-collar-backend/internal/store"
	"livestock-collar-backend/internal/telemetry"
)

// Services are the components the HTTP layer calls into.
type Services struct {
	Store      store.Store
	Catalog    *catalog.Catalog
	Manager    *lifecycle.Manager
	Reconciler *importer.Reconciler
	Details    *importer.DetailStore
	Recorder   *telemetry.Recorder
	Evaluator  *geofence.Evaluator
	Webpush    *webpush.Options
	Log        *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Services
	maxUpload int64
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, maxUploadBytes int64) *Handler {
	if svc.Log == nil {
		svc.Log = zap.NewNop()
	}
	return &Handler{Services: svc, maxUpload: maxUploadBytes}
}

// respondError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, telemetry.ErrUnauthorized):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		if errors.Is(err, apperr.ErrConfiguration) {
			c.AbortWithStatusJSON(status, gin.H{"error": "service misconfigured"})
			return
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
