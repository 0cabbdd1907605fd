package hashchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDeterministic(t *testing.T) {
	payload := map[string]interface{}{
		"batch_id": "batch-1",
		"action":   "allocated",
		"metadata": map[string]interface{}{
			"weight":        1200.5,
			"material_type": "Plastic",
		},
	}

	first, err := Digest(payload, "")
	require.NoError(t, err)
	second, err := Digest(payload, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestDigestIndependentOfFieldOrder(t *testing.T) {
	// Structs serialize in declaration order; canonicalization must erase that.
	type variantA struct {
		Action string  `json:"action"`
		Weight float64 `json:"weight"`
	}
	type variantB struct {
		Weight float64 `json:"weight"`
		Action string  `json:"action"`
	}

	a, err := Digest(variantA{Action: "collected", Weight: 500}, "")
	require.NoError(t, err)
	b, err := Digest(variantB{Weight: 500, Action: "collected"}, "")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestDigestNestedStructures(t *testing.T) {
	payload := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"b": 2, "a": 1},
			map[string]interface{}{"d": 4, "c": 3},
		},
	}
	reordered := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"a": 1, "b": 2},
			map[string]interface{}{"c": 3, "d": 4},
		},
	}

	first, err := Digest(payload, "")
	require.NoError(t, err)
	second, err := Digest(reordered, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDigestPreviousHashChangesResult(t *testing.T) {
	payload := map[string]interface{}{"action": "allocated"}

	genesis, err := Digest(payload, "")
	require.NoError(t, err)
	linked, err := Digest(payload, genesis)
	require.NoError(t, err)

	assert.NotEqual(t, genesis, linked)

	// Linking is by prefixing, so the same previous hash reproduces the digest.
	again, err := Digest(payload, genesis)
	require.NoError(t, err)
	assert.Equal(t, linked, again)
}

func TestDigestNilPayload(t *testing.T) {
	digest, err := Digest(nil, "")
	require.NoError(t, err)
	assert.Len(t, digest, 64)
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	canonical, err := Canonicalize(map[string]interface{}{"z": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"z":1}`, canonical)
}
