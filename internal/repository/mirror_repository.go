package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/regenworks/regenworks-api/internal/models"
)

// MirrorRepository replicates ledger entries into the Redis document store.
// Documents are keyed by the entry's own block hash, so replaying a sync is
// idempotent regardless of how many times a job is retried.
type MirrorRepository struct {
	client    *redis.Client
	namespace string
}

// NewMirrorRepository constructs the repository.
func NewMirrorRepository(client *redis.Client, namespace string) *MirrorRepository {
	if namespace == "" {
		namespace = "ledger"
	}
	return &MirrorRepository{client: client, namespace: namespace}
}

func (r *MirrorRepository) entryKey(projectID, blockHash string) string {
	return fmt.Sprintf("%s:entries:%s:%s", r.namespace, projectID, blockHash)
}

func (r *MirrorRepository) indexKey(projectID string) string {
	return fmt.Sprintf("%s:index:%s", r.namespace, projectID)
}

// WriteEntry stores the document and indexes it by sequence number.
func (r *MirrorRepository) WriteEntry(ctx context.Context, doc models.MirrorDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal mirror document: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.entryKey(doc.ProjectID, doc.BlockHash), raw, 0)
	pipe.ZAdd(ctx, r.indexKey(doc.ProjectID), redis.Z{
		Score:  float64(doc.SequenceNo),
		Member: doc.BlockHash,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write mirror document: %w", err)
	}
	return nil
}

// ListEntries returns the mirrored documents for a project in sequence order.
func (r *MirrorRepository) ListEntries(ctx context.Context, projectID string) ([]models.MirrorDocument, error) {
	hashes, err := r.client.ZRange(ctx, r.indexKey(projectID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read mirror index: %w", err)
	}
	if len(hashes) == 0 {
		return []models.MirrorDocument{}, nil
	}

	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = r.entryKey(projectID, hash)
	}
	raws, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read mirror documents: %w", err)
	}

	docs := make([]models.MirrorDocument, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var doc models.MirrorDocument
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("decode mirror document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
