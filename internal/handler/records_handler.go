package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/service"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/response"
)

type entityProvider interface {
	Entity(collection string) (service.Entity, error)
}

type listingExporter interface {
	Render(ctx context.Context, collection string, format service.ExportFormat) (*service.ExportResult, error)
}

// RecordsHandler exposes the generic create, lookup, list and delete operations of
// every collection.
type RecordsHandler struct {
	records  entityProvider
	exporter listingExporter
	logger   *zap.Logger
}

// NewRecordsHandler constructs a records handler.
func NewRecordsHandler(records entityProvider, exporter listingExporter, logger *zap.Logger) *RecordsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordsHandler{records: records, exporter: exporter, logger: logger}
}

type lookupRequest struct {
	Combination int                    `json:"combination"`
	Key         map[string]interface{} `json:"key" binding:"required"`
}

// List godoc
// @Summary List a collection
// @Description Every document with references replaced by display names
// @Tags Records
// @Produce json
// @Param collection path string true "departments, courses, sections or students"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{collection} [get]
func (h *RecordsHandler) List(c *gin.Context) {
	entity, err := h.records.Entity(c.Param("collection"))
	if err != nil {
		response.Error(c, err)
		return
	}
	docs, err := entity.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, docs, len(docs))
}

// Create godoc
// @Summary Create a document
// @Description Reference fields take {"combination": n, "key": {...}} selecting the target by a unique key
// @Tags Records
// @Accept json
// @Produce json
// @Param collection path string true "Collection"
// @Param payload body map[string]interface{} true "Field values"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /records/{collection} [post]
func (h *RecordsHandler) Create(c *gin.Context) {
	entity, err := h.records.Entity(c.Param("collection"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var values map[string]interface{}
	if err := c.ShouldBindJSON(&values); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	id, err := entity.Create(c.Request.Context(), repository.Values(values))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"id": id.Hex()})
}

// Lookup godoc
// @Summary Look up a document by a unique key
// @Tags Records
// @Accept json
// @Produce json
// @Param collection path string true "Collection"
// @Param payload body lookupRequest true "Unique combination index and its values"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{collection}/lookup [post]
func (h *RecordsHandler) Lookup(c *gin.Context) {
	entity, err := h.records.Entity(c.Param("collection"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lookup payload"))
		return
	}
	doc, err := entity.LookupByKey(c.Request.Context(), req.Combination, repository.Values(req.Key))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc)
}

// Delete godoc
// @Summary Delete a document
// @Description Refused while other documents depend on it
// @Tags Records
// @Produce json
// @Param collection path string true "Collection"
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{collection}/{id} [delete]
func (h *RecordsHandler) Delete(c *gin.Context) {
	entity, err := h.records.Entity(c.Param("collection"))
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := objectIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := entity.Delete(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": n})
}

// Export godoc
// @Summary Export a collection listing
// @Tags Records
// @Produce text/csv
// @Produce application/pdf
// @Param collection path string true "Collection"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /records/{collection}/export [get]
func (h *RecordsHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exporter.Render(c.Request.Context(), c.Param("collection"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Debug("listing exported", zap.String("collection", c.Param("collection")), zap.Int("rows", result.Rows))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
