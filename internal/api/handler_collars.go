package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"livestock-collar-backend/internal/lifecycle"
	"livestock-collar-backend/internal/mw"
	"livestock-collar-backend/internal/store"
)

const maxPageSize = 500

type listCollarsQuery struct {
	Search string `form:"search"`
	State  string `form:"state"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListCollars returns the collar inventory, optionally filtered.
func (h *Handler) ListCollars(c *gin.Context) {
	var q listCollarsQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Limit < 0 || q.Offset < 0 {
		badRequest(c)
		return
	}
	if q.Limit == 0 || q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}

	collars, err := h.Store.ListCollars(c.Request.Context(), store.CollarFilter{
		Search: q.Search,
		State:  q.State,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collars)
}

// AvailableCollars lists collars that can be assigned right now.
func (h *Handler) AvailableCollars(c *gin.Context) {
	collars, err := h.Store.AvailableCollars(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collars)
}

// ListStates returns the collar state catalog.
func (h *Handler) ListStates(c *gin.Context) {
	type state struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	rows := h.Catalog.States()
	out := make([]state, len(rows))
	for i, s := range rows {
		out[i] = state{ID: s.ID, Name: s.Name}
	}
	c.JSON(http.StatusOK, out)
}

type createCollarRequest struct {
	Code string `json:"code" binding:"required"`
}

// CreateCollar registers a single collar.
func (h *Handler) CreateCollar(c *gin.Context) {
	var req createCollarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	collar, err := h.Manager.Create(c.Request.Context(), req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondCollar(c, http.StatusCreated, collar.ID)
}

type createBatchRequest struct {
	Base     string `json:"base" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

// CreateCollarBatch creates consecutive collars BASE-n after the highest existing n.
func (h *Handler) CreateCollarBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	result, err := h.Manager.CreateBatch(c.Request.Context(), req.Base, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetCollar returns one collar with its current animal.
func (h *Handler) GetCollar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.respondCollar(c, http.StatusOK, id)
}

type updateCollarRequest struct {
	State   *string  `json:"state"`
	Battery *float64 `json:"battery"`
}

// UpdateCollar changes the state and/or battery level of a collar.
func (h *Handler) UpdateCollar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateCollarRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.State == nil && req.Battery == nil) {
		badRequest(c)
		return
	}

	if _, err := h.Manager.Update(c.Request.Context(), id, lifecycle.CollarUpdate{
		State:   req.State,
		Battery: req.Battery,
	}); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondCollar(c, http.StatusOK, id)
}

// DeleteCollar retires a collar, closing its open assignment first.
func (h *Handler) DeleteCollar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Manager.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignRequest struct {
	AnimalID *int64 `json:"animalId"`
}

// AssignCollar puts the collar on an animal. A null animalId unassigns it.
func (h *Handler) AssignCollar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	actor, _ := mw.ActorID(c)
	result, err := h.Manager.Assign(c.Request.Context(), id, req.AnimalID, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "summary": result.Summary()})
}

// UnassignCollar takes the collar off its animal.
func (h *Handler) UnassignCollar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	actor, _ := mw.ActorID(c)
	result, err := h.Manager.Unassign(c.Request.Context(), id, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "summary": result.Summary()})
}

// CollarHistory lists every assignment of a collar, newest first.
func (h *Handler) CollarHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.GetCollar(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}
	history, err := h.Store.AssignmentHistory(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) respondCollar(c *gin.Context, status int, id int64) {
	view, err := h.Store.GetCollar(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, view)
}
