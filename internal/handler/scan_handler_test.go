package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/middleware"
	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

type materialFlowServiceMock struct {
	scanResult *dto.RecordScanResult
	scanErr    error
	linkResult *dto.AppendEntryResult
	linkErr    error
	lastUser   string
}

func (m *materialFlowServiceMock) RecordScannedItem(ctx context.Context, userID string, req dto.RecordScanRequest) (*dto.RecordScanResult, error) {
	m.lastUser = userID
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.scanResult, nil
}

func (m *materialFlowServiceMock) LinkBatch(ctx context.Context, userID, batchID string, req dto.LinkBatchRequest) (*dto.AppendEntryResult, error) {
	m.lastUser = userID
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	return m.linkResult, nil
}

func (m *materialFlowServiceMock) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return &models.Batch{ID: batchID}, nil
}

func TestScanHandlerRecordSuccess(t *testing.T) {
	mock := &materialFlowServiceMock{scanResult: &dto.RecordScanResult{BatchID: "batch-1", WeightGrams: 180, BatchTotalGrams: 180}}
	handler := NewScanHandler(mock, nil)

	c, w := newLedgerTestContext(t, http.MethodPost, "/scans", dto.RecordScanRequest{MaterialType: "glass", WeightGrams: 180})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Record(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", mock.lastUser)
	assert.Contains(t, w.Body.String(), `"batchId":"batch-1"`)
}

func TestScanHandlerRecordRequiresMaterialType(t *testing.T) {
	handler := NewScanHandler(&materialFlowServiceMock{}, nil)

	c, w := newLedgerTestContext(t, http.MethodPost, "/scans", map[string]interface{}{"weightGrams": 100})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Record(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanHandlerLinkConflict(t *testing.T) {
	mock := &materialFlowServiceMock{linkErr: appErrors.ErrBatchAlreadyLinked}
	handler := NewScanHandler(mock, nil)

	c, w := newLedgerTestContext(t, http.MethodPost, "/batches/batch-1/link", dto.LinkBatchRequest{ProjectID: "proj-1"})
	c.Params = gin.Params{{Key: "batchId", Value: "batch-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Link(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestScanHandlerLinkSuccess(t *testing.T) {
	mock := &materialFlowServiceMock{linkResult: &dto.AppendEntryResult{BlockHash: "hash-9", SequenceNo: 9}}
	handler := NewScanHandler(mock, nil)

	c, w := newLedgerTestContext(t, http.MethodPost, "/batches/batch-1/link", dto.LinkBatchRequest{ProjectID: "proj-1"})
	c.Params = gin.Params{{Key: "batchId", Value: "batch-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Link(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"blockHash":"hash-9"`)
}
