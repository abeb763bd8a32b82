package api

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"livestock-collar-backend/internal/importer"
	"livestock-collar-backend/internal/mw"
	"livestock-collar-backend/internal/store"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ImportCollars reconciles an uploaded CSV or XLSX file against the inventory.
func (h *Handler) ImportCollars(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer f.Close()

	var rows []importer.Row
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".csv":
		rows, err = importer.ReadCSV(f)
	case ".xlsx":
		rows, err = importer.ReadXLSX(f)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported file type, expected .csv or .xlsx"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	actor, _ := mw.ActorID(c)
	report, err := h.Reconciler.Reconcile(c.Request.Context(), rows, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.Details != nil {
		h.Details.Put(report)
	}

	status := http.StatusOK
	switch {
	case report.Status == importer.StatusError:
		status = http.StatusUnprocessableEntity
	case report.ErrorCount > 0:
		status = http.StatusMultiStatus
	}
	h.Log.Info("collar import finished",
		zap.String("batch_id", report.BatchID),
		zap.String("file", fh.Filename),
		zap.Int("rows", report.TotalProcessed),
		zap.Int("errors", report.ErrorCount))
	c.JSON(status, report)
}

// ImportDetail downloads the per-row outcome of a finished import.
func (h *Handler) ImportDetail(c *gin.Context) {
	if h.Details == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "import detail not found"})
		return
	}
	report, ok := h.Details.Get(c.Param("batch_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "import detail not found"})
		return
	}

	name := "import_" + report.BatchID
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		var buf bytes.Buffer
		if err := importer.WriteDetailCSV(&buf, report); err != nil {
			h.respondError(c, err)
			return
		}
		attachment(c, name+".csv", csvContentType, buf.Bytes())
	case "xlsx":
		data, err := importer.DetailXLSX(report)
		if err != nil {
			h.respondError(c, err)
			return
		}
		attachment(c, name+".xlsx", xlsxContentType, data)
	default:
		badRequest(c)
	}
}

// ExportCollars downloads collars in the import format. mode is all, filtered
// (by search) or selected (by ids).
func (h *Handler) ExportCollars(c *gin.Context) {
	var filter store.CollarFilter
	switch c.DefaultQuery("mode", "all") {
	case "all":
	case "filtered":
		filter.Search = c.Query("search")
	case "selected":
		ids, err := parseIDs(c.Query("ids"))
		if err != nil || len(ids) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ids must list at least one collar id"})
			return
		}
		filter.IDs = ids
	default:
		badRequest(c)
		return
	}

	rows, err := h.Store.ExportRows(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		var buf bytes.Buffer
		if err := importer.WriteExportCSV(&buf, rows); err != nil {
			h.respondError(c, err)
			return
		}
		attachment(c, "collars.csv", csvContentType, buf.Bytes())
	case "xlsx":
		data, err := importer.ExportXLSX(rows)
		if err != nil {
			h.respondError(c, err)
			return
		}
		attachment(c, "collars.xlsx", xlsxContentType, data)
	default:
		badRequest(c)
	}
}

// ImportTemplate downloads an empty import file.
func (h *Handler) ImportTemplate(c *gin.Context) {
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		var buf bytes.Buffer
		if err := importer.WriteTemplateCSV(&buf); err != nil {
			h.respondError(c, err)
			return
		}
		attachment(c, "collars_template.csv", csvContentType, buf.Bytes())
	case "xlsx":
		data, err := importer.TemplateXLSX()
		if err != nil {
			h.respondError(c, err)
			return
		}
		attachment(c, "collars_template.xlsx", xlsxContentType, data)
	default:
		badRequest(c)
	}
}

func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
