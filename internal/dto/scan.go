package dto

// RecordScanRequest reports one scanned waste item. WeightGrams may be zero
// when the client has no measurement; the average-weight lookup fills it in.
type RecordScanRequest struct {
	MaterialType string  `json:"materialType" binding:"required"`
	WeightGrams  float64 `json:"weightGrams"`
}

// RecordScanResult describes what the material flow did with the scan.
type RecordScanResult struct {
	BatchID         string  `json:"batchId"`
	WeightGrams     float64 `json:"weightGrams"`
	BatchTotalGrams float64 `json:"batchTotalGrams"`
	LinkedProjectID string  `json:"linkedProjectId,omitempty"`
	Linked          bool    `json:"linked"`
}

// LinkBatchRequest manually allocates a batch to a project.
type LinkBatchRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
}
