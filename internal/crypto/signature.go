package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Sign computes an RSA-PSS signature over the SHA-256 hash of the
// canonical message encoding. The signature covers plaintext fields, so
// verification requires the decrypted content.
func Sign(msg CanonicalMessage, priv *rsa.PrivateKey) ([]byte, error) {
	data, err := msg.Canonicalize()
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return sig, nil
}

// Verify reports whether sig is a valid signature over the canonical
// encoding of msg under pub.
func Verify(msg CanonicalMessage, sig []byte, pub *rsa.PublicKey) bool {
	data, err := msg.Canonicalize()
	if err != nil {
		return false
	}

	digest := sha256.Sum256(data)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil) == nil
}

// SignDigest signs a precomputed SHA-256 digest with RSA-PSS. Used by the
// CA for certificate signatures.
func SignDigest(digest []byte, priv *rsa.PrivateKey) ([]byte, error) {
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

// VerifyDigest reports whether sig is a valid RSA-PSS signature over a
// precomputed SHA-256 digest.
func VerifyDigest(digest, sig []byte, pub *rsa.PublicKey) bool {
	return rsa.VerifyPSS(pub, crypto.SHA256, digest, sig, nil) == nil
}
