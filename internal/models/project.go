package models

import "time"

// ProjectStatus captures the lifecycle of an infrastructure project.
type ProjectStatus string

const (
	ProjectStatusPlanned    ProjectStatus = "planned"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

// Project is an infrastructure project built from recycled materials. It is
// the aggregation root of the ledger: every project owns an append-only
// sequence of ledger entries.
type Project struct {
	ID             string        `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Status         ProjectStatus `db:"status" json:"status"`
	LocationLat    float64       `db:"location_lat" json:"locationLat"`
	LocationLng    float64       `db:"location_lng" json:"locationLng"`
	Description    *string       `db:"description" json:"description,omitempty"`
	ProjectType    *string       `db:"project_type" json:"projectType,omitempty"`
	RequiredGrams  float64       `db:"required_grams" json:"requiredGrams"`
	AllocatedGrams float64       `db:"allocated_grams" json:"allocatedGrams"`
	DateStarted    *time.Time    `db:"date_started" json:"dateStarted,omitempty"`
	DateCompleted  *time.Time    `db:"date_completed" json:"dateCompleted,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// ProjectDetail augments a project with its material breakdown and the
// calling user's share.
type ProjectDetail struct {
	Project          Project            `json:"project"`
	MaterialsGrams   map[string]float64 `json:"materialsGrams"`
	UserContribution float64            `json:"userContributionGrams"`
	IsTopContributor bool               `json:"isTopContributor"`
}
