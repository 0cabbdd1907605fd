package models

import "time"

// Ledger entry statuses. The column is an open string vocabulary; these are
// the values the material flow writes.
const (
	LedgerStatusCollected  = "collected"
	LedgerStatusAllocated  = "allocated"
	LedgerStatusInProgress = "in_progress"
	LedgerStatusCompleted  = "completed"
)

// LedgerEntry is one immutable, hash-linked block in a project's ledger.
// Entries are totally ordered within a project by SequenceNo; wall-clock
// timestamps are informational only.
type LedgerEntry struct {
	ID             string    `db:"id" json:"id"`
	ProjectID      string    `db:"project_id" json:"projectId"`
	SequenceNo     int64     `db:"sequence_no" json:"sequenceNo"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	Status         string    `db:"status" json:"status"`
	VerifiedBy     string    `db:"verified_by" json:"verifiedBy"`
	BatchReference *string   `db:"batch_reference" json:"batchReference,omitempty"`
	Payload        JSONMap   `db:"payload" json:"payload"`
	PreviousHash   *string   `db:"previous_hash" json:"previousHash,omitempty"`
	BlockHash      string    `db:"block_hash" json:"blockHash"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// PreviousHashValue returns the previous hash or "" for the genesis entry.
func (e *LedgerEntry) PreviousHashValue() string {
	if e.PreviousHash == nil {
		return ""
	}
	return *e.PreviousHash
}

// ChainBlock is a ledger entry decorated with its verification result for
// read endpoints.
type ChainBlock struct {
	Index          int       `json:"index"`
	BlockHash      string    `json:"blockHash"`
	PreviousHash   *string   `json:"previousHash,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
	VerifiedBy     string    `json:"verifiedBy"`
	BatchReference *string   `json:"batchReference,omitempty"`
	Payload        JSONMap   `json:"payload"`
	IsValid        bool      `json:"isValid"`
}

// MirrorDocument is the shape replicated to the external document store.
type MirrorDocument struct {
	ProjectID      string    `json:"projectId"`
	BlockHash      string    `json:"blockHash"`
	SequenceNo     int64     `json:"sequenceNo"`
	BatchReference string    `json:"batchReference,omitempty"`
	WeightGrams    float64   `json:"weightGrams"`
	VerifiedBy     string    `json:"verifiedBy"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}
