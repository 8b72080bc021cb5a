// Package contracts holds the domain types shared across every UCLSE
// package: node identities, verify keys, assets, and job/action records.
// None of these types carry behavior of their own; they are the nouns
// the other packages operate on.
package contracts

import "crypto/ed25519"

// NodeType distinguishes a data-holding domain node from a multi-party
// enclave node, per the approval fan-out rules each implies.
type NodeType string

const (
	NodeTypeDomain  NodeType = "domain"
	NodeTypeEnclave NodeType = "enclave"
)

// VerifyKey is a submitter or node's public signing key, hex-encoded for
// storage and comparison.
type VerifyKey string

// NewVerifyKey encodes a raw Ed25519 public key.
func NewVerifyKey(pub ed25519.PublicKey) VerifyKey {
	return VerifyKey(hexEncode(pub))
}

// NodeIdentity names one approval-granting party: a domain node, or one
// member of an enclave's participant set.
type NodeIdentity struct {
	NodeName  string    `json:"node_name"`
	NodeID    string    `json:"node_id"`
	VerifyKey VerifyKey `json:"verify_key"`
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
