// Package offerhash produces stable digests of offer payloads. The digest is
// recorded on audit events and handed to document generation so a settled
// offer can be matched against the document it produced.
package offerhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sum hashes json.Marshal(v) with SHA256 and returns a "sha256:" prefixed
// hex digest alongside the canonical bytes.
func Sum(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), b, nil
}
