package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/models"
	"github.com/regenworks/regenworks-api/internal/repository"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/hashchain"
)

type flowStoreStub struct {
	mu       sync.Mutex
	batches  map[string]*models.Batch
	project  *models.Project
	sequence int64
	linkErr  error
	links    int
}

func newFlowStoreStub(project *models.Project) *flowStoreStub {
	return &flowStoreStub{batches: map[string]*models.Batch{}, project: project}
}

func (s *flowStoreStub) AddToOpenBatch(ctx context.Context, params repository.AddToOpenBatchParams) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, batch := range s.batches {
		if batch.MaterialType == params.MaterialType && batch.LinkedProjectID == nil {
			batch.TotalWeightGrams += params.WeightGrams
			copied := *batch
			return &copied, nil
		}
	}
	batch := &models.Batch{
		ID:               "batch-" + params.MaterialType,
		MaterialType:     params.MaterialType,
		TotalWeightGrams: params.WeightGrams,
		Status:           models.BatchStatusCollected,
	}
	s.batches[batch.ID] = batch
	copied := *batch
	return &copied, nil
}

func (s *flowStoreStub) FindSuitableProject(ctx context.Context) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project, nil
}

func (s *flowStoreStub) LinkBatchToProject(ctx context.Context, params repository.LinkBatchParams) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return nil, s.linkErr
	}
	batch, ok := s.batches[params.BatchID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	if batch.LinkedProjectID != nil {
		return nil, appErrors.ErrBatchAlreadyLinked
	}
	projectID := params.ProjectID
	batch.LinkedProjectID = &projectID
	batch.Status = models.BatchStatusAllocated
	s.links++
	s.sequence++

	payload := models.JSONMap{"batch_id": batch.ID, "action": models.LedgerStatusAllocated}
	hash, err := hashchain.Digest(payload, "")
	if err != nil {
		return nil, err
	}
	return &models.LedgerEntry{
		ID:         "entry-link",
		ProjectID:  projectID,
		SequenceNo: s.sequence,
		Status:     models.LedgerStatusAllocated,
		VerifiedBy: params.VerifiedBy,
		Payload:    payload,
		BlockHash:  hash,
	}, nil
}

func (s *flowStoreStub) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch, ok := s.batches[batchID]; ok {
		copied := *batch
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
}

type materialWeightStub struct {
	weights map[string]float64
}

func (s materialWeightStub) AverageWeight(ctx context.Context, materialType string) (float64, error) {
	return s.weights[materialType], nil
}

func newTestFlowService(store *flowStoreStub, weights materialWeightStub) (*MaterialFlowService, *chainCacheStub, *mirrorStub) {
	cache := newChainCacheStub()
	mirror := &mirrorStub{}
	svc := NewMaterialFlowService(store, weights, cache, mirror, MaterialFlowConfig{
		BatchThresholdGrams:    1000,
		DefaultItemWeightGrams: 25,
	}, nil)
	return svc, cache, mirror
}

func TestMaterialFlowScanBelowThresholdStaysOpen(t *testing.T) {
	store := newFlowStoreStub(&models.Project{ID: "proj-1"})
	svc, _, mirror := newTestFlowService(store, materialWeightStub{})

	result, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{
		MaterialType: "plastic_bottle",
		WeightGrams:  600,
	})
	require.NoError(t, err)
	assert.False(t, result.Linked)
	assert.Empty(t, result.LinkedProjectID)
	assert.Equal(t, 600.0, result.BatchTotalGrams)
	assert.Empty(t, mirror.dispatched)
}

func TestMaterialFlowScanCrossingThresholdAutoLinks(t *testing.T) {
	store := newFlowStoreStub(&models.Project{ID: "proj-1"})
	svc, cache, mirror := newTestFlowService(store, materialWeightStub{})

	_, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{
		MaterialType: "plastic_bottle",
		WeightGrams:  600,
	})
	require.NoError(t, err)

	result, err := svc.RecordScannedItem(context.Background(), "user-2", dto.RecordScanRequest{
		MaterialType: "plastic_bottle",
		WeightGrams:  500,
	})
	require.NoError(t, err)
	assert.True(t, result.Linked)
	assert.Equal(t, "proj-1", result.LinkedProjectID)
	assert.Equal(t, 1100.0, result.BatchTotalGrams)
	assert.Equal(t, 1, store.links)
	assert.Len(t, mirror.dispatched, 1)
	assert.Equal(t, 1, cache.invalidations)
}

func TestMaterialFlowScanNoSuitableProject(t *testing.T) {
	store := newFlowStoreStub(nil)
	svc, _, _ := newTestFlowService(store, materialWeightStub{})

	result, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{
		MaterialType: "plastic_bottle",
		WeightGrams:  1500,
	})
	require.NoError(t, err)
	assert.False(t, result.Linked)
	assert.Equal(t, 0, store.links)
}

func TestMaterialFlowScanWeightFallbacks(t *testing.T) {
	store := newFlowStoreStub(nil)
	svc, _, _ := newTestFlowService(store, materialWeightStub{weights: map[string]float64{"glass": 180}})

	// reference table supplies the weight
	result, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{MaterialType: "glass"})
	require.NoError(t, err)
	assert.Equal(t, 180.0, result.WeightGrams)

	// unknown material falls back to the default item weight
	result, err = svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{MaterialType: "mystery"})
	require.NoError(t, err)
	assert.Equal(t, 25.0, result.WeightGrams)
}

func TestMaterialFlowAutoLinkFailureDoesNotFailScan(t *testing.T) {
	store := newFlowStoreStub(&models.Project{ID: "proj-1"})
	store.linkErr = appErrors.ErrAppendConflict
	svc, _, _ := newTestFlowService(store, materialWeightStub{})

	result, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{
		MaterialType: "plastic_bottle",
		WeightGrams:  1200,
	})
	require.NoError(t, err)
	assert.False(t, result.Linked)
	assert.Equal(t, 1200.0, result.BatchTotalGrams)
}

func TestMaterialFlowManualLinkRejectsRelink(t *testing.T) {
	store := newFlowStoreStub(&models.Project{ID: "proj-1"})
	svc, _, _ := newTestFlowService(store, materialWeightStub{})

	_, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{
		MaterialType: "plastic_bottle",
		WeightGrams:  300,
	})
	require.NoError(t, err)

	_, err = svc.LinkBatch(context.Background(), "user-1", "batch-plastic_bottle", dto.LinkBatchRequest{ProjectID: "proj-1"})
	require.NoError(t, err)

	_, err = svc.LinkBatch(context.Background(), "user-1", "batch-plastic_bottle", dto.LinkBatchRequest{ProjectID: "proj-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBatchAlreadyLinked.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, store.links)
}

func TestMaterialFlowConcurrentScansLoseNoWeight(t *testing.T) {
	store := newFlowStoreStub(nil)
	svc, _, _ := newTestFlowService(store, materialWeightStub{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordScannedItem(context.Background(), "user-1", dto.RecordScanRequest{
				MaterialType: "plastic_bottle",
				WeightGrams:  10,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	batch, err := svc.GetBatch(context.Background(), "batch-plastic_bottle")
	require.NoError(t, err)
	assert.Equal(t, 500.0, batch.TotalWeightGrams)
}

func TestMaterialFlowScanRequiresUser(t *testing.T) {
	store := newFlowStoreStub(nil)
	svc, _, _ := newTestFlowService(store, materialWeightStub{})

	_, err := svc.RecordScannedItem(context.Background(), "", dto.RecordScanRequest{MaterialType: "glass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
