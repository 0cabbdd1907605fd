package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MaterialRepository looks up reference weights for scanned materials.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// AverageWeight returns the reference average weight in grams for a material
// type. Returns 0 with no error when the material is unknown; the caller
// decides the fallback.
func (r *MaterialRepository) AverageWeight(ctx context.Context, materialType string) (float64, error) {
	var weight float64
	err := r.db.GetContext(ctx, &weight,
		`SELECT average_weight_grams FROM material_weights WHERE material_type = $1`, materialType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup material weight: %w", err)
	}
	return weight, nil
}
