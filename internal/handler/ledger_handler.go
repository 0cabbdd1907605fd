package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/response"
)

type ledgerService interface {
	AppendEntry(ctx context.Context, projectID, actor string, req dto.AppendEntryRequest) (*dto.AppendEntryResult, error)
	GetChain(ctx context.Context, projectID string) ([]models.ChainBlock, error)
	Verify(ctx context.Context, projectID string) (*dto.VerifyResult, error)
	UserContributionChain(ctx context.Context, userID string) ([]dto.ContributionChainItem, error)
	ExportChain(ctx context.Context, projectID, format string) ([]byte, string, string, error)
}

type mirrorReader interface {
	ListMirrored(ctx context.Context, projectID string) ([]models.MirrorDocument, error)
}

type ledgerMetrics interface {
	RecordLedgerAppend(status string)
	RecordVerification(valid bool)
}

// LedgerHandler exposes the per-project provenance chain.
type LedgerHandler struct {
	service ledgerService
	mirror  mirrorReader
	metrics ledgerMetrics
}

// NewLedgerHandler builds a new handler. mirror and metrics may be nil.
func NewLedgerHandler(service ledgerService, mirror mirrorReader, metrics ledgerMetrics) *LedgerHandler {
	return &LedgerHandler{service: service, mirror: mirror, metrics: metrics}
}

// Append godoc
// @Summary Append a ledger entry to a project's chain
// @Tags Ledger
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param payload body dto.AppendEntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /projects/{projectId}/ledger [post]
func (h *LedgerHandler) Append(c *gin.Context) {
	var req dto.AppendEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}

	result, err := h.service.AppendEntry(c.Request.Context(), c.Param("projectId"), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordLedgerAppend(req.Status)
	}
	response.Created(c, result)
}

// Chain godoc
// @Summary Get a project's full chain with per-block validity
// @Tags Ledger
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{projectId}/ledger [get]
func (h *LedgerHandler) Chain(c *gin.Context) {
	blocks, err := h.service.GetChain(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

// Verify godoc
// @Summary Verify a project's chain integrity
// @Tags Ledger
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{projectId}/ledger/verify [get]
func (h *LedgerHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordVerification(result.Valid)
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export a project's chain as CSV or a certificate PDF
// @Tags Ledger
// @Produce text/csv
// @Produce application/pdf
// @Param projectId path string true "Project ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Router /projects/{projectId}/ledger/export [get]
func (h *LedgerHandler) Export(c *gin.Context) {
	raw, contentType, filename, err := h.service.ExportChain(c.Request.Context(), c.Param("projectId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, raw)
}

// Mirror godoc
// @Summary List the mirrored documents for a project
// @Tags Ledger
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{projectId}/ledger/mirror [get]
func (h *LedgerHandler) Mirror(c *gin.Context) {
	if h.mirror == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "mirror is not enabled"))
		return
	}
	docs, err := h.mirror.ListMirrored(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// MyContributions godoc
// @Summary Get the caller's contributions with their provenance chains
// @Tags Ledger
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/contributions/chain [get]
func (h *LedgerHandler) MyContributions(c *gin.Context) {
	items, err := h.service.UserContributionChain(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
