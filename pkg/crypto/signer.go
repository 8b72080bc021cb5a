package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// VerifySubmitterSignature checks that signature is a valid Ed25519
// signature over message under the verify key encoded in vk. A
// UserCode submission is attributed to exactly one verify key, not a
// quorum, so there is no threshold to configure.
func VerifySubmitterSignature(vk contracts.VerifyKey, message, signature []byte) error {
	pub, err := decodeVerifyKey(vk)
	if err != nil {
		return fmt.Errorf("decode verify key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("verify key has wrong size %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	if !ed25519.Verify(pub, message, signature) {
		return fmt.Errorf("ed25519 signature verification failed")
	}
	return nil
}

func decodeVerifyKey(vk contracts.VerifyKey) ([]byte, error) {
	return hex.DecodeString(string(vk))
}
