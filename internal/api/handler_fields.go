package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FieldGeofence splits the animals of a field into inside, outside and unknown
// by their last known position.
func (h *Handler) FieldGeofence(c *gin.Context) {
	fieldID, ok := pathID(c, "field_id")
	if !ok {
		return
	}

	subjects, err := h.Store.AnimalFixesInField(c.Request.Context(), fieldID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Evaluator.Partition(subjects))
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
