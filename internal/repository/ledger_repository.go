package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
	"github.com/regenworks/regenworks-api/pkg/hashchain"
)

const ledgerColumns = `id, project_id, sequence_no, timestamp, status, verified_by, batch_reference, payload, previous_hash, block_hash, created_at`

// queryObserver receives per-operation database timings.
type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// LedgerRepository owns the durable, append-only entry sequence per project.
type LedgerRepository struct {
	db      *sqlx.DB
	retries int
	metrics queryObserver
}

// NewLedgerRepository constructs the repository. retries bounds how often an
// append is replayed after a transaction serialization failure. metrics may
// be nil.
func NewLedgerRepository(db *sqlx.DB, retries int, metrics queryObserver) *LedgerRepository {
	if retries <= 0 {
		retries = 3
	}
	return &LedgerRepository{db: db, retries: retries, metrics: metrics}
}

func (r *LedgerRepository) observe(label string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

// AppendParams describes one entry to append.
type AppendParams struct {
	ProjectID      string
	Status         string
	VerifiedBy     string
	BatchReference *string
	Payload        models.JSONMap
	Timestamp      time.Time
}

// Append durably appends a hash-linked entry. The read-latest/compute-hash/
// insert sequence runs in one transaction holding a project-scoped advisory
// lock, so concurrent appends for the same project serialize. Serialization
// failures are retried up to the configured bound, then surfaced as an append
// conflict; nothing is persisted on failure.
func (r *LedgerRepository) Append(ctx context.Context, params AppendParams) (*models.LedgerEntry, error) {
	defer r.observe("ledger_append", time.Now())

	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		entry, err := r.appendOnce(ctx, params)
		if err == nil {
			return entry, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrAppendConflict.Code, appErrors.ErrAppendConflict.Status, appErrors.ErrAppendConflict.Message)
}

func (r *LedgerRepository) appendOnce(ctx context.Context, params AppendParams) (*models.LedgerEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := acquireProjectLock(ctx, tx, params.ProjectID); err != nil {
		return nil, err
	}

	entry, err := appendEntryTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return entry, nil
}

// Latest returns the chronologically last entry for a project, or nil when the
// chain is empty.
func (r *LedgerRepository) Latest(ctx context.Context, projectID string) (*models.LedgerEntry, error) {
	defer r.observe("ledger_latest", time.Now())

	var entry models.LedgerEntry
	err := r.db.GetContext(ctx, &entry,
		`SELECT `+ledgerColumns+` FROM project_ledger WHERE project_id = $1 ORDER BY sequence_no DESC LIMIT 1`,
		projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read latest entry: %w", err)
	}
	return &entry, nil
}

// History returns a project's entries oldest first.
func (r *LedgerRepository) History(ctx context.Context, projectID string) ([]models.LedgerEntry, error) {
	defer r.observe("ledger_history", time.Now())

	var entries []models.LedgerEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT `+ledgerColumns+` FROM project_ledger WHERE project_id = $1 ORDER BY sequence_no ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("read ledger history: %w", err)
	}
	return entries, nil
}

// appendEntryTx reads the chain head, links and inserts a new entry inside the
// caller's transaction. Callers must already hold the project advisory lock.
func appendEntryTx(ctx context.Context, tx *sqlx.Tx, params AppendParams) (*models.LedgerEntry, error) {
	var head struct {
		SequenceNo int64  `db:"sequence_no"`
		BlockHash  string `db:"block_hash"`
	}

	sequenceNo := int64(1)
	var previousHash *string
	err := tx.GetContext(ctx, &head,
		`SELECT sequence_no, block_hash FROM project_ledger WHERE project_id = $1 ORDER BY sequence_no DESC LIMIT 1`,
		params.ProjectID)
	switch {
	case err == nil:
		sequenceNo = head.SequenceNo + 1
		prev := head.BlockHash
		previousHash = &prev
	case errors.Is(err, sql.ErrNoRows):
		// genesis entry
	default:
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	ts := params.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	payload := params.Payload
	if payload == nil {
		payload = models.JSONMap{}
	}

	prevValue := ""
	if previousHash != nil {
		prevValue = *previousHash
	}
	blockHash, err := hashchain.Digest(payload, prevValue)
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		ProjectID:      params.ProjectID,
		SequenceNo:     sequenceNo,
		Timestamp:      ts,
		Status:         params.Status,
		VerifiedBy:     params.VerifiedBy,
		BatchReference: params.BatchReference,
		Payload:        payload,
		PreviousHash:   previousHash,
		BlockHash:      blockHash,
		CreatedAt:      ts,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_ledger (id, project_id, sequence_no, timestamp, status, verified_by, batch_reference, payload, previous_hash, block_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.ProjectID, entry.SequenceNo, entry.Timestamp, entry.Status,
		entry.VerifiedBy, entry.BatchReference, entry.Payload, entry.PreviousHash,
		entry.BlockHash, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

// acquireProjectLock serializes writers per project for the transaction's
// lifetime. Writers for different projects proceed in parallel.
func acquireProjectLock(ctx context.Context, tx *sqlx.Tx, projectID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, projectID); err != nil {
		return fmt.Errorf("acquire project lock: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
