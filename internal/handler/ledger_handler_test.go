package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/middleware"
	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/response"
)

type ledgerServiceMock struct {
	appendResult *dto.AppendEntryResult
	appendErr    error
	chain        []models.ChainBlock
	verifyResult *dto.VerifyResult
	lastActor    string
}

func (m *ledgerServiceMock) AppendEntry(ctx context.Context, projectID, actor string, req dto.AppendEntryRequest) (*dto.AppendEntryResult, error) {
	m.lastActor = actor
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	return m.appendResult, nil
}

func (m *ledgerServiceMock) GetChain(ctx context.Context, projectID string) ([]models.ChainBlock, error) {
	return m.chain, nil
}

func (m *ledgerServiceMock) Verify(ctx context.Context, projectID string) (*dto.VerifyResult, error) {
	return m.verifyResult, nil
}

func (m *ledgerServiceMock) UserContributionChain(ctx context.Context, userID string) ([]dto.ContributionChainItem, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	return []dto.ContributionChainItem{{ContributionID: "contrib-1"}}, nil
}

func (m *ledgerServiceMock) ExportChain(ctx context.Context, projectID, format string) ([]byte, string, string, error) {
	if format == "pdf" {
		return []byte("%PDF-1.3"), "application/pdf", "certificate-" + projectID + ".pdf", nil
	}
	return []byte("index,timestamp\n"), "text/csv", "chain-" + projectID + ".csv", nil
}

func newLedgerTestContext(t *testing.T, method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestLedgerHandlerAppendSuccess(t *testing.T) {
	mock := &ledgerServiceMock{appendResult: &dto.AppendEntryResult{BlockHash: "hash-1", SequenceNo: 1}}
	handler := NewLedgerHandler(mock, nil, nil)

	c, w := newLedgerTestContext(t, http.MethodPost, "/projects/proj-1/ledger", dto.AppendEntryRequest{Status: "collected"})
	c.Params = gin.Params{{Key: "projectId", Value: "proj-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Append(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", mock.lastActor)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hash-1", data["blockHash"])
}

func TestLedgerHandlerAppendInvalidBody(t *testing.T) {
	handler := NewLedgerHandler(&ledgerServiceMock{}, nil, nil)
	c, w := newLedgerTestContext(t, http.MethodPost, "/projects/proj-1/ledger", map[string]interface{}{"payload": "not-a-map"})
	c.Params = gin.Params{{Key: "projectId", Value: "proj-1"}}

	handler.Append(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLedgerHandlerAppendConflictStatus(t *testing.T) {
	mock := &ledgerServiceMock{appendErr: appErrors.ErrAppendConflict}
	handler := NewLedgerHandler(mock, nil, nil)

	c, w := newLedgerTestContext(t, http.MethodPost, "/projects/proj-1/ledger", dto.AppendEntryRequest{Status: "collected"})
	c.Params = gin.Params{{Key: "projectId", Value: "proj-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Append(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLedgerHandlerVerify(t *testing.T) {
	index := 2
	mock := &ledgerServiceMock{verifyResult: &dto.VerifyResult{ProjectID: "proj-1", Valid: false, Entries: 5, FirstInvalidIndex: &index}}
	handler := NewLedgerHandler(mock, nil, nil)

	c, w := newLedgerTestContext(t, http.MethodGet, "/projects/proj-1/ledger/verify", nil)
	c.Params = gin.Params{{Key: "projectId", Value: "proj-1"}}

	handler.Verify(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"firstInvalidIndex":2`)
	assert.Contains(t, w.Body.String(), `"valid":false`)
}

func TestLedgerHandlerExportSetsDisposition(t *testing.T) {
	handler := NewLedgerHandler(&ledgerServiceMock{}, nil, nil)

	c, w := newLedgerTestContext(t, http.MethodGet, "/projects/proj-1/ledger/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "projectId", Value: "proj-1"}}

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "certificate-proj-1.pdf")
}

func TestLedgerHandlerMirrorDisabled(t *testing.T) {
	handler := NewLedgerHandler(&ledgerServiceMock{}, nil, nil)

	c, w := newLedgerTestContext(t, http.MethodGet, "/projects/proj-1/ledger/mirror", nil)
	c.Params = gin.Params{{Key: "projectId", Value: "proj-1"}}

	handler.Mirror(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLedgerHandlerMyContributionsRequiresAuth(t *testing.T) {
	handler := NewLedgerHandler(&ledgerServiceMock{}, nil, nil)

	c, w := newLedgerTestContext(t, http.MethodGet, "/me/contributions/chain", nil)
	handler.MyContributions(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
