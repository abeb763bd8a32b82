package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"livestock-collar-backend/internal/telemetry"
)

// ClientIDHeader identifies the gateway node that forwards collar samples.
const ClientIDHeader = "X-Client-ID"

// IngestTelemetry stores one collar sample forwarded by an authorized node.
func (h *Handler) IngestTelemetry(c *gin.Context) {
	var sample telemetry.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		badRequest(c)
		return
	}
	sample.ClientID = c.GetHeader(ClientIDHeader)

	result, err := h.Recorder.Record(c.Request.Context(), sample)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}
