package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Fingerprint derives the cache key for a submission. It is deterministic:
// params are key-sorted before hashing, the language is lowercased, and the
// source is trimmed of leading/trailing whitespace only; interior
// whitespace changes execution semantics and must change the key.
func Fingerprint(code, language string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inputs := make([][2]any, 0, len(keys))
	for _, k := range keys {
		inputs = append(inputs, [2]any{k, params[k]})
	}

	payload := struct {
		Code     string   `json:"code"`
		Language string   `json:"language"`
		Inputs   [][2]any `json:"inputs"`
	}{
		Code:     strings.TrimSpace(code),
		Language: strings.ToLower(language),
		Inputs:   inputs,
	}

	// Struct field order is fixed and map keys are pre-sorted, so the
	// encoding is canonical.
	data, err := json.Marshal(payload)
	if err != nil {
		// Only non-serializable param values can get here; fall back to
		// hashing the raw components so the key is still deterministic.
		data = []byte(payload.Code + "\x00" + payload.Language)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
