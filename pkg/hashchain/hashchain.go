package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize produces a deterministic string representation of the payload.
// The payload is round-tripped through JSON so that structs and maps with the
// same content always serialize identically: encoding/json writes object keys
// in sorted order at every nesting level.
func Canonicalize(payload interface{}) (string, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("normalize payload: %w", err)
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	return string(canonical), nil
}

// Digest computes the SHA-256 hex digest of the canonicalized payload. When a
// previous hash is supplied it is prepended to the canonical string before
// hashing, which links consecutive entries into a chain.
func Digest(payload interface{}, previousHash string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}

	if previousHash != "" {
		canonical = previousHash + canonical
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
