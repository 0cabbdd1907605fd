package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

// ProjectRepository reads projects and their derived aggregates.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// List returns projects newest first, optionally filtered by status.
func (r *ProjectRepository) List(ctx context.Context, status string, page, limit int) ([]models.Project, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	args := []interface{}{}
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM projects`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+projectColumns+` FROM projects%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	return projects, total, nil
}

// GetByID loads one project.
func (r *ProjectRepository) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, fmt.Errorf("load project: %w", err)
	}
	return &project, nil
}

// MaterialsBreakdown sums allocated batch weights by material type.
func (r *ProjectRepository) MaterialsBreakdown(ctx context.Context, projectID string) (map[string]float64, error) {
	rows := []struct {
		MaterialType string  `db:"material_type"`
		WeightGrams  float64 `db:"weight_grams"`
	}{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT material_type, SUM(total_weight_grams) AS weight_grams
		 FROM waste_batches WHERE linked_project_id = $1
		 GROUP BY material_type`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("materials breakdown: %w", err)
	}

	breakdown := make(map[string]float64, len(rows))
	for _, row := range rows {
		breakdown[row.MaterialType] = row.WeightGrams
	}
	return breakdown, nil
}

// UserContribution returns the user's summed weight toward a project and
// whether any of their contribution rows carry the top-contributor flag.
func (r *ProjectRepository) UserContribution(ctx context.Context, projectID, userID string) (float64, bool, error) {
	var row struct {
		WeightGrams float64 `db:"weight_grams"`
		IsTop       bool    `db:"is_top"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT COALESCE(SUM(pc.weight_grams), 0) AS weight_grams,
		        COALESCE(BOOL_OR(pc.is_top_contributor), FALSE) AS is_top
		 FROM project_contributors pc
		 JOIN waste_batches wb ON wb.id = pc.batch_id
		 WHERE wb.linked_project_id = $1 AND pc.user_id = $2`,
		projectID, userID)
	if err != nil {
		return 0, false, fmt.Errorf("user contribution: %w", err)
	}
	return row.WeightGrams, row.IsTop, nil
}
