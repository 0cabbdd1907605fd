package dto

import (
	"time"

	"github.com/regenworks/regenworks-api/internal/models"
)

// AppendEntryRequest is the payload for a manual ledger append.
type AppendEntryRequest struct {
	Status         string         `json:"status" binding:"required"`
	BatchReference string         `json:"batchReference"`
	Payload        models.JSONMap `json:"payload"`
}

// AppendEntryResult echoes the chain coordinates of a freshly appended block.
type AppendEntryResult struct {
	BlockHash    string    `json:"blockHash"`
	PreviousHash *string   `json:"previousHash,omitempty"`
	SequenceNo   int64     `json:"sequenceNo"`
	Timestamp    time.Time `json:"timestamp"`
}

// VerifyResult reports a chain verification outcome. FirstInvalidIndex is nil
// when the chain verifies end to end.
type VerifyResult struct {
	ProjectID         string `json:"projectId"`
	Valid             bool   `json:"valid"`
	Entries           int    `json:"entries"`
	FirstInvalidIndex *int   `json:"firstInvalidIndex,omitempty"`
}

// ContributionChainItem is one of the caller's contributions with the batch it
// landed in and, when the batch was allocated, the receiving project and its
// chain.
type ContributionChainItem struct {
	ContributionID string              `json:"contributionId"`
	WeightGrams    float64             `json:"weightGrams"`
	Date           time.Time           `json:"date"`
	Batch          *models.Batch       `json:"batch,omitempty"`
	Project        *models.Project     `json:"project,omitempty"`
	Chain          []models.ChainBlock `json:"chain,omitempty"`
}
