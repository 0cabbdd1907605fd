package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/regenworks/regenworks-api/internal/models"
	"github.com/regenworks/regenworks-api/pkg/jobs"
)

type mirrorWriter interface {
	WriteEntry(ctx context.Context, doc models.MirrorDocument) error
	ListEntries(ctx context.Context, projectID string) ([]models.MirrorDocument, error)
}

type syncRecorder interface {
	RecordMirrorSync(ok bool)
}

// MirrorService replicates committed ledger entries into the external
// document store in the background. The mirror is derived state: the ledger
// never waits on it and never fails because of it.
type MirrorService struct {
	writer  mirrorWriter
	queue   *jobs.Queue
	enabled bool
	metrics syncRecorder
	logger  *zap.Logger
}

// NewMirrorService constructs a MirrorService backed by an in-memory worker
// queue. metrics may be nil.
func NewMirrorService(writer mirrorWriter, enabled bool, queueCfg jobs.QueueConfig, metrics syncRecorder, logger *zap.Logger) *MirrorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MirrorService{
		writer:  writer,
		enabled: enabled,
		metrics: metrics,
		logger:  logger,
	}
	if queueCfg.Logger == nil {
		queueCfg.Logger = logger
	}
	s.queue = jobs.NewQueue("mirror-sync", s.handleJob, queueCfg)
	return s
}

// Start launches the sync workers.
func (s *MirrorService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *MirrorService) Stop() {
	if !s.enabled {
		return
	}
	s.queue.Stop()
}

// Dispatch queues one entry for replication. Returns false when the mirror is
// disabled or the queue refused the job; the caller treats that as a logged
// degradation, never an error. Every outcome is counted.
func (s *MirrorService) Dispatch(entry models.LedgerEntry) bool {
	ok := s.dispatch(entry)
	if s.metrics != nil {
		s.metrics.RecordMirrorSync(ok)
	}
	return ok
}

func (s *MirrorService) dispatch(entry models.LedgerEntry) bool {
	if !s.enabled || s.writer == nil {
		return false
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      entry.BlockHash,
		Type:    "mirror-entry",
		Payload: documentFromEntry(entry),
	})
	if err != nil {
		s.logger.Warn("mirror enqueue failed",
			zap.String("project_id", entry.ProjectID),
			zap.String("block_hash", entry.BlockHash),
			zap.Error(err))
		return false
	}
	return true
}

// ListMirrored returns the replicated documents for a project in sequence
// order, for reconciliation against the authoritative chain.
func (s *MirrorService) ListMirrored(ctx context.Context, projectID string) ([]models.MirrorDocument, error) {
	return s.writer.ListEntries(ctx, projectID)
}

func (s *MirrorService) handleJob(ctx context.Context, job jobs.Job) error {
	doc, ok := job.Payload.(models.MirrorDocument)
	if !ok {
		s.logger.Error("mirror job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.writer.WriteEntry(ctx, doc)
}

// documentFromEntry flattens an entry into the mirrored shape. The document
// is keyed by the entry's own block hash, so replaying a retried job writes
// the same document again instead of duplicating it.
func documentFromEntry(entry models.LedgerEntry) models.MirrorDocument {
	doc := models.MirrorDocument{
		ProjectID:   entry.ProjectID,
		BlockHash:   entry.BlockHash,
		SequenceNo:  entry.SequenceNo,
		WeightGrams: weightFromPayload(entry.Payload),
		VerifiedBy:  entry.VerifiedBy,
		Status:      entry.Status,
		Timestamp:   entry.Timestamp,
	}
	if entry.BatchReference != nil {
		doc.BatchReference = *entry.BatchReference
	}
	return doc
}
