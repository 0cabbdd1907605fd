package models

import "time"

// BatchStatus captures the lifecycle of a waste batch.
type BatchStatus string

const (
	BatchStatusCollected BatchStatus = "collected"
	BatchStatusAllocated BatchStatus = "allocated"
	BatchStatusCompleted BatchStatus = "completed"
)

// Batch aggregates collected waste of one material type. Weight accumulates
// while the batch is collected and unlinked; once allocated to a project the
// tracked fields are frozen.
type Batch struct {
	ID               string      `db:"id" json:"id"`
	MaterialType     string      `db:"material_type" json:"materialType"`
	TotalWeightGrams float64     `db:"total_weight_grams" json:"totalWeightGrams"`
	Status           BatchStatus `db:"status" json:"status"`
	LinkedProjectID  *string     `db:"linked_project_id" json:"linkedProjectId,omitempty"`
	CollectionDate   time.Time   `db:"collection_date" json:"collectionDate"`
	ProcessingDate   *time.Time  `db:"processing_date" json:"processingDate,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updatedAt"`
}

// Linked reports whether the batch has been allocated to a project.
func (b *Batch) Linked() bool {
	return b.LinkedProjectID != nil
}

// Contribution attributes a user's weight share of a batch. At most one row
// exists per (user, batch); repeat scans accumulate.
type Contribution struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	BatchID          string    `db:"batch_id" json:"batchId"`
	WeightGrams      float64   `db:"weight_grams" json:"weightGrams"`
	ContributionDate time.Time `db:"contribution_date" json:"contributionDate"`
	IsTopContributor bool      `db:"is_top_contributor" json:"isTopContributor"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// ContributorTotal is a user's summed contribution across all batches linked
// to one project.
type ContributorTotal struct {
	UserID      string  `db:"user_id" json:"userId"`
	WeightGrams float64 `db:"weight_grams" json:"weightGrams"`
}

// MaterialWeight is the average-weight lookup used when a scan carries no
// measured weight.
type MaterialWeight struct {
	ID                  string    `db:"id" json:"id"`
	MaterialType        string    `db:"material_type" json:"materialType"`
	Category            *string   `db:"category" json:"category,omitempty"`
	AverageWeightGrams  float64   `db:"average_weight_grams" json:"averageWeightGrams"`
	MinWeightGrams      *float64  `db:"min_weight_grams" json:"minWeightGrams,omitempty"`
	MaxWeightGrams      *float64  `db:"max_weight_grams" json:"maxWeightGrams,omitempty"`
	ConfidenceThreshold float64   `db:"confidence_threshold" json:"confidenceThreshold"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}
