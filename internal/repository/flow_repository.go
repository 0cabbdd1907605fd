package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

const batchColumns = `id, material_type, total_weight_grams, status, linked_project_id, collection_date, processing_date, created_at, updated_at`
const projectColumns = `id, name, status, location_lat, location_lng, description, project_type, required_grams, allocated_grams, date_started, date_completed, created_at, updated_at`

// FlowRepository owns the transactional material-flow primitives: batch
// accumulation, batch->project allocation and top-contributor recomputation.
// Each exported method is a single atomic unit.
type FlowRepository struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewFlowRepository constructs the repository. metrics may be nil.
func NewFlowRepository(db *sqlx.DB, metrics queryObserver) *FlowRepository {
	return &FlowRepository{db: db, metrics: metrics}
}

func (r *FlowRepository) observe(label string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

// AddToOpenBatchParams describes one collected item.
type AddToOpenBatchParams struct {
	UserID       string
	MaterialType string
	WeightGrams  float64
	Window       time.Duration
}

// AddToOpenBatch adds weight to the open batch for the material type,
// creating one when no batch of that material is still collecting inside the
// window, and accumulates the user's contribution row. Runs in one
// transaction holding a material-scoped advisory lock so concurrent scans of
// the same material cannot lose updates.
func (r *FlowRepository) AddToOpenBatch(ctx context.Context, params AddToOpenBatchParams) (*models.Batch, error) {
	defer r.observe("batch_accumulate", time.Now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "batch:"+params.MaterialType); err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}

	now := time.Now().UTC()
	windowStart := now.Add(-params.Window)

	var batch models.Batch
	err = tx.GetContext(ctx, &batch,
		`SELECT `+batchColumns+` FROM waste_batches
		 WHERE material_type = $1 AND status = $2 AND linked_project_id IS NULL AND collection_date >= $3
		 ORDER BY collection_date DESC LIMIT 1 FOR UPDATE`,
		params.MaterialType, models.BatchStatusCollected, windowStart)
	switch {
	case err == nil:
		batch.TotalWeightGrams += params.WeightGrams
		batch.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE waste_batches SET total_weight_grams = total_weight_grams + $1, updated_at = $2 WHERE id = $3`,
			params.WeightGrams, now, batch.ID); err != nil {
			return nil, fmt.Errorf("accumulate batch weight: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		batch = models.Batch{
			ID:               uuid.NewString(),
			MaterialType:     params.MaterialType,
			TotalWeightGrams: params.WeightGrams,
			Status:           models.BatchStatusCollected,
			CollectionDate:   now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO waste_batches (id, material_type, total_weight_grams, status, collection_date, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			batch.ID, batch.MaterialType, batch.TotalWeightGrams, batch.Status,
			batch.CollectionDate, batch.CreatedAt, batch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("create batch: %w", err)
		}
	default:
		return nil, fmt.Errorf("find open batch: %w", err)
	}

	if params.UserID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_contributors (id, user_id, batch_id, weight_grams, contribution_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $5)
			 ON CONFLICT (user_id, batch_id)
			 DO UPDATE SET weight_grams = project_contributors.weight_grams + EXCLUDED.weight_grams`,
			uuid.NewString(), params.UserID, batch.ID, params.WeightGrams, now); err != nil {
			return nil, fmt.Errorf("upsert contribution: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch tx: %w", err)
	}
	return &batch, nil
}

// FindSuitableProject returns the oldest planned/in-progress project with
// unmet allocation, falling back to the oldest planned project. Matching is
// deliberately material-agnostic: any open project can absorb any material.
// Returns nil when no project qualifies.
func (r *FlowRepository) FindSuitableProject(ctx context.Context) (*models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project,
		`SELECT `+projectColumns+` FROM projects
		 WHERE status IN ($1, $2) AND required_grams > 0 AND allocated_grams < required_grams
		 ORDER BY created_at ASC LIMIT 1`,
		models.ProjectStatusPlanned, models.ProjectStatusInProgress)
	if err == nil {
		return &project, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find open project: %w", err)
	}

	err = r.db.GetContext(ctx, &project,
		`SELECT `+projectColumns+` FROM projects WHERE status = $1 ORDER BY created_at ASC LIMIT 1`,
		models.ProjectStatusPlanned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find planned project: %w", err)
	}
	return &project, nil
}

// LinkBatchParams drives a batch->project allocation.
type LinkBatchParams struct {
	BatchID       string
	ProjectID     string
	VerifiedBy    string
	AutoLinked    bool
	StartFraction float64
	TopFraction   float64
}

// LinkBatchToProject allocates a batch to a project in one transaction:
// batch status flip, allocated-amount bump, planned->in_progress promotion
// when crossing the start fraction, the "allocated" ledger entry and the
// top-contributor recomputation all commit together or not at all.
// Re-linking an already allocated batch is rejected, never double counted.
func (r *FlowRepository) LinkBatchToProject(ctx context.Context, params LinkBatchParams) (*models.LedgerEntry, error) {
	defer r.observe("batch_link", time.Now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin link tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := acquireProjectLock(ctx, tx, params.ProjectID); err != nil {
		return nil, err
	}

	var batch models.Batch
	err = tx.GetContext(ctx, &batch,
		`SELECT `+batchColumns+` FROM waste_batches WHERE id = $1 FOR UPDATE`, params.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}
	if batch.Linked() || batch.Status != models.BatchStatusCollected {
		return nil, appErrors.ErrBatchAlreadyLinked
	}

	var project models.Project
	err = tx.GetContext(ctx, &project,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, params.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, fmt.Errorf("load project: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE waste_batches SET status = $1, linked_project_id = $2, processing_date = $3, updated_at = $3 WHERE id = $4`,
		models.BatchStatusAllocated, project.ID, now, batch.ID); err != nil {
		return nil, fmt.Errorf("allocate batch: %w", err)
	}

	newAllocated := project.AllocatedGrams + batch.TotalWeightGrams
	newStatus := project.Status
	dateStarted := project.DateStarted
	if project.Status == models.ProjectStatusPlanned &&
		project.RequiredGrams > 0 &&
		newAllocated >= project.RequiredGrams*params.StartFraction {
		newStatus = models.ProjectStatusInProgress
		if dateStarted == nil {
			dateStarted = &now
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET allocated_grams = $1, status = $2, date_started = $3, updated_at = $4 WHERE id = $5`,
		newAllocated, newStatus, dateStarted, now, project.ID); err != nil {
		return nil, fmt.Errorf("update project allocation: %w", err)
	}

	payload := models.JSONMap{
		"batch_id":    batch.ID,
		"project_id":  project.ID,
		"action":      models.LedgerStatusAllocated,
		"verified_by": params.VerifiedBy,
		"timestamp":   now.Format(time.RFC3339Nano),
		"metadata": map[string]interface{}{
			"weight":        batch.TotalWeightGrams,
			"material_type": batch.MaterialType,
			"auto_linked":   params.AutoLinked,
		},
	}
	batchRef := batch.ID
	entry, err := appendEntryTx(ctx, tx, AppendParams{
		ProjectID:      project.ID,
		Status:         models.LedgerStatusAllocated,
		VerifiedBy:     params.VerifiedBy,
		BatchReference: &batchRef,
		Payload:        payload,
		Timestamp:      now,
	})
	if err != nil {
		return nil, err
	}

	if err := recomputeTopContributorsTx(ctx, tx, project.ID, params.TopFraction); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit link tx: %w", err)
	}
	return entry, nil
}

// RecomputeTopContributors reruns the ranking for a project in its own
// transaction. Safe to call repeatedly; converges to the same flags for the
// same underlying contributions.
func (r *FlowRepository) RecomputeTopContributors(ctx context.Context, projectID string, fraction float64) error {
	defer r.observe("top_contributors_recompute", time.Now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recompute tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := recomputeTopContributorsTx(ctx, tx, projectID, fraction); err != nil {
		return err
	}
	return tx.Commit()
}

func recomputeTopContributorsTx(ctx context.Context, tx *sqlx.Tx, projectID string, fraction float64) error {
	var totals []models.ContributorTotal
	err := tx.SelectContext(ctx, &totals,
		`SELECT pc.user_id, SUM(pc.weight_grams) AS weight_grams
		 FROM project_contributors pc
		 JOIN waste_batches wb ON wb.id = pc.batch_id
		 WHERE wb.linked_project_id = $1
		 GROUP BY pc.user_id
		 ORDER BY weight_grams DESC, user_id ASC`,
		projectID)
	if err != nil {
		return fmt.Errorf("sum contributions: %w", err)
	}
	if len(totals) == 0 {
		return nil
	}

	top := TopContributorIDs(totals, fraction)
	_, err = tx.ExecContext(ctx,
		`UPDATE project_contributors pc
		 SET is_top_contributor = (pc.user_id = ANY($2))
		 FROM waste_batches wb
		 WHERE wb.id = pc.batch_id AND wb.linked_project_id = $1`,
		projectID, pq.StringArray(top))
	if err != nil {
		return fmt.Errorf("update top contributor flags: %w", err)
	}
	return nil
}

// TopContributorIDs selects the leading users whose count is the top fraction
// of all contributors, rounded up, never fewer than one. Totals must already
// be sorted descending by weight; ties are broken by user id ascending for
// determinism.
func TopContributorIDs(totals []models.ContributorTotal, fraction float64) []string {
	if len(totals) == 0 {
		return nil
	}
	if fraction <= 0 {
		fraction = 0.1
	}

	sorted := make([]models.ContributorTotal, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].WeightGrams != sorted[j].WeightGrams {
			return sorted[i].WeightGrams > sorted[j].WeightGrams
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	count := int(math.Ceil(float64(len(sorted)) * fraction))
	if count < 1 {
		count = 1
	}
	if count > len(sorted) {
		count = len(sorted)
	}

	ids := make([]string, 0, count)
	for _, total := range sorted[:count] {
		ids = append(ids, total.UserID)
	}
	return ids
}

// GetBatch loads one batch by id.
func (r *FlowRepository) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	err := r.db.GetContext(ctx, &batch,
		`SELECT `+batchColumns+` FROM waste_batches WHERE id = $1`, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}
	return &batch, nil
}

// ListUserContributions returns a user's contribution rows, newest first.
func (r *FlowRepository) ListUserContributions(ctx context.Context, userID string) ([]models.Contribution, error) {
	var contributions []models.Contribution
	err := r.db.SelectContext(ctx, &contributions,
		`SELECT id, user_id, batch_id, weight_grams, contribution_date, is_top_contributor, created_at
		 FROM project_contributors WHERE user_id = $1 ORDER BY contribution_date DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return contributions, nil
}
