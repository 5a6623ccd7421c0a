// Package cache implements the content-addressed ExecutionCache: a
// SQLite-backed store of prior artifact executions keyed by
// (artifact_id, input_hash), with provenance tracking. Grounded on the
// teacher's internal/store/migrations.go (schema versioning, backup-
// before-migrate, SHA256 content hashing via ComputeContentHash) and
// internal/store/learning.go (upsert-with-confidence pattern, generalized
// here to upsert-with-status).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// CanonicalJSON marshals v with sorted map keys and no extraneous
// whitespace so equivalent structures hash identically regardless of
// field ordering.
func CanonicalJSON(v any) ([]byte, error) {
	// encoding/json already sorts map[string]any keys; for struct
	// fields the caller is responsible for deterministic field order,
	// hashing a fixed field layout rather than building a reflective
	// canonicalizer.
	return json.Marshal(v)
}

// InputHash computes SHA256 over the artifact's canonical spec plus the
// sorted input_hashes of its dependencies plus a tool-version stamp, per
// spec.md §3.
func InputHash(artifactSpecJSON []byte, dependencyHashes []string, toolVersion string) string {
	sorted := append([]string(nil), dependencyHashes...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(artifactSpecJSON)
	h.Write([]byte("\x00"))
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte("\x00"))
	h.Write([]byte(toolVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// OutputHash computes SHA256 over produced artifact contents.
func OutputHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// GoalHash normalizes and hashes a goal string per SPEC_FULL.md §9's
// resolved open question: lowercase, trim, collapse internal whitespace.
func GoalHash(goal string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(goal))), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
