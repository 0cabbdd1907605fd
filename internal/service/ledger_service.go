package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/regenworks/regenworks-api/internal/dto"
	"github.com/regenworks/regenworks-api/internal/models"
	"github.com/regenworks/regenworks-api/internal/repository"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/export"
	"github.com/regenworks/regenworks-api/pkg/hashchain"
)

type ledgerStore interface {
	Append(ctx context.Context, params repository.AppendParams) (*models.LedgerEntry, error)
	History(ctx context.Context, projectID string) ([]models.LedgerEntry, error)
}

type ledgerProjectReader interface {
	GetByID(ctx context.Context, projectID string) (*models.Project, error)
}

type chainCache interface {
	GetChain(ctx context.Context, projectID string) ([]models.ChainBlock, error)
	SetChain(ctx context.Context, projectID string, blocks []models.ChainBlock) error
	InvalidateChain(ctx context.Context, projectID string) error
}

type mirrorDispatcher interface {
	Dispatch(entry models.LedgerEntry) bool
}

type contributionReader interface {
	ListUserContributions(ctx context.Context, userID string) ([]models.Contribution, error)
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
}

// LedgerService orchestrates appends to and reads from the per-project
// provenance chain. Writes go through the store; the cache and the mirror are
// strictly best-effort and never fail a committed append.
type LedgerService struct {
	store    ledgerStore
	projects ledgerProjectReader
	flows    contributionReader
	cache    chainCache
	mirror   mirrorDispatcher
	logger   *zap.Logger
}

// NewLedgerService constructs a LedgerService. cache and mirror may be nil.
func NewLedgerService(store ledgerStore, projects ledgerProjectReader, flows contributionReader, cache chainCache, mirror mirrorDispatcher, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		store:    store,
		projects: projects,
		flows:    flows,
		cache:    cache,
		mirror:   mirror,
		logger:   logger,
	}
}

// AppendEntry validates and appends one entry to a project's chain. The
// caller's payload is enriched with the action, the verifying user and the
// timestamp before hashing, so those fields are tamper-evident too.
func (s *LedgerService) AppendEntry(ctx context.Context, projectID, actor string, req dto.AppendEntryRequest) (*dto.AppendEntryResult, error) {
	status := strings.TrimSpace(req.Status)
	if status == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status is required")
	}
	if actor == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payload := models.JSONMap{}
	for key, value := range req.Payload {
		payload[key] = value
	}
	payload["action"] = status
	payload["verified_by"] = actor
	payload["timestamp"] = now.Format(time.RFC3339Nano)

	var batchRef *string
	if ref := strings.TrimSpace(req.BatchReference); ref != "" {
		batchRef = &ref
	}

	entry, err := s.store.Append(ctx, repository.AppendParams{
		ProjectID:      projectID,
		Status:         status,
		VerifiedBy:     actor,
		BatchReference: batchRef,
		Payload:        payload,
		Timestamp:      now,
	})
	if err != nil {
		return nil, err
	}

	s.afterAppend(ctx, entry)

	return &dto.AppendEntryResult{
		BlockHash:    entry.BlockHash,
		PreviousHash: entry.PreviousHash,
		SequenceNo:   entry.SequenceNo,
		Timestamp:    entry.Timestamp,
	}, nil
}

// afterAppend runs the post-commit side effects: cache invalidation and the
// mirror dispatch. Both are best-effort; the entry is already durable.
func (s *LedgerService) afterAppend(ctx context.Context, entry *models.LedgerEntry) {
	if s.cache != nil {
		if err := s.cache.InvalidateChain(ctx, entry.ProjectID); err != nil {
			s.logger.Warn("chain cache invalidation failed",
				zap.String("project_id", entry.ProjectID), zap.Error(err))
		}
	}
	if s.mirror != nil {
		if !s.mirror.Dispatch(*entry) {
			s.logger.Warn("mirror dispatch refused",
				zap.String("project_id", entry.ProjectID),
				zap.String("block_hash", entry.BlockHash))
		}
	}
}

// GetChain returns the project's full chain oldest first, each block carrying
// its recomputed validity. Served from the cache when fresh.
func (s *LedgerService) GetChain(ctx context.Context, projectID string) ([]models.ChainBlock, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		blocks, err := s.cache.GetChain(ctx, projectID)
		if err == nil {
			return blocks, nil
		}
		if appErrors.FromError(err).Code != appErrors.ErrCacheMiss.Code {
			s.logger.Warn("chain cache read failed", zap.String("project_id", projectID), zap.Error(err))
		}
	}

	entries, err := s.store.History(ctx, projectID)
	if err != nil {
		return nil, err
	}
	blocks := BuildChain(entries)

	if s.cache != nil {
		if err := s.cache.SetChain(ctx, projectID, blocks); err != nil {
			s.logger.Warn("chain cache write failed", zap.String("project_id", projectID), zap.Error(err))
		}
	}
	return blocks, nil
}

// Verify walks the chain from the database, never the cache, and reports the
// first block that fails hash or linkage checks.
func (s *LedgerService) Verify(ctx context.Context, projectID string) (*dto.VerifyResult, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := &dto.VerifyResult{ProjectID: projectID, Valid: true, Entries: len(entries)}
	for i, block := range BuildChain(entries) {
		if !block.IsValid {
			index := i
			result.Valid = false
			result.FirstInvalidIndex = &index
			break
		}
	}
	return result, nil
}

// UserContributionChain assembles the caller's contributions with the batch
// each landed in and, for allocated batches, the receiving project's chain.
func (s *LedgerService) UserContributionChain(ctx context.Context, userID string) ([]dto.ContributionChainItem, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	contributions, err := s.flows.ListUserContributions(ctx, userID)
	if err != nil {
		return nil, err
	}

	chains := map[string][]models.ChainBlock{}
	projects := map[string]*models.Project{}

	items := make([]dto.ContributionChainItem, 0, len(contributions))
	for _, contribution := range contributions {
		item := dto.ContributionChainItem{
			ContributionID: contribution.ID,
			WeightGrams:    contribution.WeightGrams,
			Date:           contribution.ContributionDate,
		}

		batch, err := s.flows.GetBatch(ctx, contribution.BatchID)
		if err != nil {
			s.logger.Warn("contribution batch lookup failed",
				zap.String("batch_id", contribution.BatchID), zap.Error(err))
			items = append(items, item)
			continue
		}
		item.Batch = batch

		if batch.LinkedProjectID != nil {
			projectID := *batch.LinkedProjectID
			if _, ok := projects[projectID]; !ok {
				project, err := s.projects.GetByID(ctx, projectID)
				if err != nil {
					s.logger.Warn("contribution project lookup failed",
						zap.String("project_id", projectID), zap.Error(err))
					projects[projectID] = nil
				} else {
					projects[projectID] = project
				}
			}
			if project := projects[projectID]; project != nil {
				item.Project = project
				if _, ok := chains[projectID]; !ok {
					chain, err := s.GetChain(ctx, projectID)
					if err != nil {
						s.logger.Warn("contribution chain lookup failed",
							zap.String("project_id", projectID), zap.Error(err))
						chain = nil
					}
					chains[projectID] = chain
				}
				item.Chain = chains[projectID]
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// ExportChain renders a project's chain as CSV or as a provenance
// certificate PDF. Returns the bytes, the content type and a filename.
func (s *LedgerService) ExportChain(ctx context.Context, projectID, format string) ([]byte, string, string, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, "", "", err
	}
	entries, err := s.store.History(ctx, projectID)
	if err != nil {
		return nil, "", "", err
	}

	doc := export.ChainDocument{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, block := range BuildChain(entries) {
		row := export.ChainRow{
			Index:        block.Index,
			Timestamp:    block.Timestamp.UTC().Format(time.RFC3339),
			Status:       block.Status,
			VerifiedBy:   block.VerifiedBy,
			WeightGrams:  weightFromPayload(block.Payload),
			BlockHash:    block.BlockHash,
			PreviousHash: stringValue(block.PreviousHash),
			Valid:        block.IsValid,
		}
		if block.BatchReference != nil {
			row.BatchRef = *block.BatchReference
		}
		doc.Rows = append(doc.Rows, row)
	}

	switch strings.ToLower(format) {
	case "", "csv":
		raw, err := export.RenderCSV(doc)
		if err != nil {
			return nil, "", "", err
		}
		return raw, "text/csv", fmt.Sprintf("chain-%s.csv", project.ID), nil
	case "pdf":
		raw, err := export.RenderCertificate(doc)
		if err != nil {
			return nil, "", "", err
		}
		return raw, "application/pdf", fmt.Sprintf("certificate-%s.pdf", project.ID), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// BuildChain decorates raw entries with per-block verification. A block is
// valid when its stored previous hash matches the prior block's stored hash
// and its stored hash matches the recomputed digest of its own payload.
func BuildChain(entries []models.LedgerEntry) []models.ChainBlock {
	blocks := make([]models.ChainBlock, 0, len(entries))
	expectedPrev := ""
	for i, entry := range entries {
		valid := entry.PreviousHashValue() == expectedPrev
		if valid {
			recomputed, err := hashchain.Digest(entry.Payload, entry.PreviousHashValue())
			valid = err == nil && recomputed == entry.BlockHash
		}
		blocks = append(blocks, models.ChainBlock{
			Index:          i,
			BlockHash:      entry.BlockHash,
			PreviousHash:   entry.PreviousHash,
			Timestamp:      entry.Timestamp,
			Status:         entry.Status,
			VerifiedBy:     entry.VerifiedBy,
			BatchReference: entry.BatchReference,
			Payload:        entry.Payload,
			IsValid:        valid,
		})
		expectedPrev = entry.BlockHash
	}
	return blocks
}

func weightFromPayload(payload models.JSONMap) float64 {
	meta, ok := payload["metadata"].(map[string]interface{})
	if !ok {
		return 0
	}
	weight, ok := meta["weight"].(float64)
	if !ok {
		return 0
	}
	return weight
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
