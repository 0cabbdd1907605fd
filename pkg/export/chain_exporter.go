package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// ChainRow is one ledger block flattened for export.
type ChainRow struct {
	Index        int
	Timestamp    string
	Status       string
	VerifiedBy   string
	BatchRef     string
	WeightGrams  float64
	BlockHash    string
	PreviousHash string
	Valid        bool
}

// ChainDocument is a project's provenance chain prepared for rendering.
type ChainDocument struct {
	ProjectID   string
	ProjectName string
	GeneratedAt string
	Rows        []ChainRow
}

var chainHeaders = []string{
	"index", "timestamp", "status", "verified_by", "batch_reference",
	"weight_grams", "block_hash", "previous_hash", "valid",
}

// RenderCSV produces the chain as CSV bytes, oldest block first.
func RenderCSV(doc ChainDocument) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(chainHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range doc.Rows {
		record := []string{
			strconv.Itoa(row.Index),
			row.Timestamp,
			row.Status,
			row.VerifiedBy,
			row.BatchRef,
			strconv.FormatFloat(row.WeightGrams, 'f', 2, 64),
			row.BlockHash,
			row.PreviousHash,
			strconv.FormatBool(row.Valid),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
