package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/response"
)

type materialFlowService interface {
	RecordScannedItem(ctx context.Context, userID string, req dto.RecordScanRequest) (*dto.RecordScanResult, error)
	LinkBatch(ctx context.Context, userID, batchID string, req dto.LinkBatchRequest) (*dto.AppendEntryResult, error)
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
}

type scanMetrics interface {
	RecordScan()
	RecordBatchLinked()
}

// ScanHandler routes scanned items into batches and batches into projects.
type ScanHandler struct {
	service materialFlowService
	metrics scanMetrics
}

// NewScanHandler builds a new handler. metrics may be nil.
func NewScanHandler(service materialFlowService, metrics scanMetrics) *ScanHandler {
	return &ScanHandler{service: service, metrics: metrics}
}

// Record godoc
// @Summary Record a scanned waste item
// @Tags Scans
// @Accept json
// @Produce json
// @Param payload body dto.RecordScanRequest true "Scan payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /scans [post]
func (h *ScanHandler) Record(c *gin.Context) {
	var req dto.RecordScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}

	result, err := h.service.RecordScannedItem(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordScan()
		if result.Linked {
			h.metrics.RecordBatchLinked()
		}
	}
	response.Created(c, result)
}

// Link godoc
// @Summary Manually allocate a batch to a project
// @Tags Scans
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body dto.LinkBatchRequest true "Target project"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /batches/{batchId}/link [post]
func (h *ScanHandler) Link(c *gin.Context) {
	var req dto.LinkBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid link payload"))
		return
	}

	result, err := h.service.LinkBatch(c.Request.Context(), userIDFromContext(c), c.Param("batchId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordBatchLinked()
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GetBatch godoc
// @Summary Get a batch
// @Tags Scans
// @Produce json
// @Param batchId path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{batchId} [get]
func (h *ScanHandler) GetBatch(c *gin.Context) {
	batch, err := h.service.GetBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}
