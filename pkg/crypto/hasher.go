// Package crypto provides the deterministic hashing and Ed25519
// signature verification UCLSE needs to establish code identity and
// submitter identity.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Mindburn-Labs/uclse/pkg/canonicalize"
)

// HashSource computes a code hash: SHA-256 of the raw, unmodified
// source bytes a submitter sent. The hash is over raw bytes, never a
// canonical form — duplicate detection must see exactly what was
// submitted.
func HashSource(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DeriveUniqueFuncName derives the wrapper-name disambiguator as a
// pure function of (service_func_name, submitter_verify_key,
// code_hash), so the same submission always yields the same wrapper
// name and no two distinct code hashes ever share one.
func DeriveUniqueFuncName(serviceFuncName, submitterVerifyKey, codeHash string) string {
	sum := sha256.Sum256([]byte(serviceFuncName + "\x00" + submitterVerifyKey + "\x00" + codeHash))
	return hex.EncodeToString(sum[:])[:16]
}

// Hasher provides deterministic hashing for values that do need
// canonicalization before hashing (policy init kwargs, approval
// receipts) — as opposed to HashSource, which hashes raw bytes.
type Hasher interface {
	Hash(v interface{}) (string, error)
}

// CanonicalHasher hashes the RFC 8785 canonical JSON form of v.
type CanonicalHasher struct{}

func NewCanonicalHasher() *CanonicalHasher {
	return &CanonicalHasher{}
}

func (h *CanonicalHasher) Hash(v interface{}) (string, error) {
	return canonicalize.CanonicalHash(v)
}
