package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/models"
	"github.com/regenworks/regenworks-api/internal/repository"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

type flowStore interface {
	AddToOpenBatch(ctx context.Context, params repository.AddToOpenBatchParams) (*models.Batch, error)
	FindSuitableProject(ctx context.Context) (*models.Project, error)
	LinkBatchToProject(ctx context.Context, params repository.LinkBatchParams) (*models.LedgerEntry, error)
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
}

type materialWeightReader interface {
	AverageWeight(ctx context.Context, materialType string) (float64, error)
}

// MaterialFlowConfig tunes batching and allocation behaviour.
type MaterialFlowConfig struct {
	BatchThresholdGrams    float64
	BatchWindow            time.Duration
	DefaultItemWeightGrams float64
	ProjectStartFraction   float64
	TopContributorFraction float64
}

// MaterialFlowService moves collected waste through batches into project
// allocations. Every allocation lands as a hash-linked ledger entry; the
// post-commit side effects are delegated back to the ledger service.
type MaterialFlowService struct {
	store   flowStore
	weights materialWeightReader
	cache   chainCache
	mirror  mirrorDispatcher
	cfg     MaterialFlowConfig
	logger  *zap.Logger
}

// NewMaterialFlowService constructs a MaterialFlowService. cache and mirror
// may be nil.
func NewMaterialFlowService(store flowStore, weights materialWeightReader, cache chainCache, mirror mirrorDispatcher, cfg MaterialFlowConfig, logger *zap.Logger) *MaterialFlowService {
	if cfg.BatchThresholdGrams <= 0 {
		cfg.BatchThresholdGrams = 1000
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 7 * 24 * time.Hour
	}
	if cfg.DefaultItemWeightGrams <= 0 {
		cfg.DefaultItemWeightGrams = 25
	}
	if cfg.ProjectStartFraction <= 0 {
		cfg.ProjectStartFraction = 0.1
	}
	if cfg.TopContributorFraction <= 0 {
		cfg.TopContributorFraction = 0.1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialFlowService{
		store:   store,
		weights: weights,
		cache:   cache,
		mirror:  mirror,
		cfg:     cfg,
		logger:  logger,
	}
}

// RecordScannedItem routes one scanned item into the open batch for its
// material, resolving the weight from the reference table when the client
// sent none. Crossing the batch threshold triggers an automatic allocation
// attempt; an allocation failure never fails the scan itself.
func (s *MaterialFlowService) RecordScannedItem(ctx context.Context, userID string, req dto.RecordScanRequest) (*dto.RecordScanResult, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	weight := req.WeightGrams
	if weight <= 0 {
		avg, err := s.weights.AverageWeight(ctx, req.MaterialType)
		if err != nil {
			return nil, err
		}
		weight = avg
	}
	if weight <= 0 {
		weight = s.cfg.DefaultItemWeightGrams
	}

	batch, err := s.store.AddToOpenBatch(ctx, repository.AddToOpenBatchParams{
		UserID:       userID,
		MaterialType: req.MaterialType,
		WeightGrams:  weight,
		Window:       s.cfg.BatchWindow,
	})
	if err != nil {
		return nil, err
	}

	result := &dto.RecordScanResult{
		BatchID:         batch.ID,
		WeightGrams:     weight,
		BatchTotalGrams: batch.TotalWeightGrams,
	}

	if batch.TotalWeightGrams >= s.cfg.BatchThresholdGrams {
		projectID, linked := s.tryAutoLink(ctx, batch.ID, userID)
		result.Linked = linked
		result.LinkedProjectID = projectID
	}
	return result, nil
}

// tryAutoLink allocates a full batch to the most suitable open project.
// Failures are logged and swallowed; the batch stays open for the next
// attempt.
func (s *MaterialFlowService) tryAutoLink(ctx context.Context, batchID, verifiedBy string) (string, bool) {
	project, err := s.store.FindSuitableProject(ctx)
	if err != nil {
		s.logger.Warn("suitable project lookup failed", zap.String("batch_id", batchID), zap.Error(err))
		return "", false
	}
	if project == nil {
		return "", false
	}

	entry, err := s.store.LinkBatchToProject(ctx, repository.LinkBatchParams{
		BatchID:       batchID,
		ProjectID:     project.ID,
		VerifiedBy:    verifiedBy,
		AutoLinked:    true,
		StartFraction: s.cfg.ProjectStartFraction,
		TopFraction:   s.cfg.TopContributorFraction,
	})
	if err != nil {
		s.logger.Warn("automatic batch allocation failed",
			zap.String("batch_id", batchID), zap.String("project_id", project.ID), zap.Error(err))
		return "", false
	}

	s.afterLink(ctx, entry)
	return project.ID, true
}

// LinkBatch manually allocates a batch to a chosen project.
func (s *MaterialFlowService) LinkBatch(ctx context.Context, userID, batchID string, req dto.LinkBatchRequest) (*dto.AppendEntryResult, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	entry, err := s.store.LinkBatchToProject(ctx, repository.LinkBatchParams{
		BatchID:       batchID,
		ProjectID:     req.ProjectID,
		VerifiedBy:    userID,
		AutoLinked:    false,
		StartFraction: s.cfg.ProjectStartFraction,
		TopFraction:   s.cfg.TopContributorFraction,
	})
	if err != nil {
		return nil, err
	}

	s.afterLink(ctx, entry)

	return &dto.AppendEntryResult{
		BlockHash:    entry.BlockHash,
		PreviousHash: entry.PreviousHash,
		SequenceNo:   entry.SequenceNo,
		Timestamp:    entry.Timestamp,
	}, nil
}

// GetBatch exposes batch lookups for the read surface.
func (s *MaterialFlowService) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return s.store.GetBatch(ctx, batchID)
}

func (s *MaterialFlowService) afterLink(ctx context.Context, entry *models.LedgerEntry) {
	if entry == nil {
		return
	}
	if s.cache != nil {
		if err := s.cache.InvalidateChain(ctx, entry.ProjectID); err != nil {
			s.logger.Warn("chain cache invalidation failed",
				zap.String("project_id", entry.ProjectID), zap.Error(err))
		}
	}
	if s.mirror != nil && !s.mirror.Dispatch(*entry) {
		s.logger.Warn("mirror dispatch refused",
			zap.String("project_id", entry.ProjectID),
			zap.String("block_hash", entry.BlockHash))
	}
}
