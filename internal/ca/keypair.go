package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/secmail/secmaild/pkg/certpem"
)

// ErrKeyGeneration is returned when key pair generation fails. The only
// realistic cause is an exhausted or broken entropy source.
var ErrKeyGeneration = errors.New("key generation failed")

const rsaKeyBits = 2048

// KeyPair holds an identity's asymmetric key material
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateKeyPair produces a fresh RSA-2048 key pair
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
	}, nil
}

// PublicKeyPEM returns the public half as PKIX PEM
func (kp *KeyPair) PublicKeyPEM() (string, error) {
	return certpem.EncodePublicKey(kp.PublicKey)
}

// PrivateKeyPEM returns the private half as PKCS#1 PEM
func (kp *KeyPair) PrivateKeyPEM() string {
	return certpem.EncodePrivateKey(kp.PrivateKey)
}

// loadKeyPair loads an existing root key pair from file
func loadKeyPair(privatePath string) (*KeyPair, error) {
	privateBytes, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	priv, err := certpem.ParsePrivateKey(string(privateBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
	}, nil
}

// saveKeyPair writes the root private key with restrictive permissions
func saveKeyPair(kp *KeyPair, privatePath string) error {
	if err := os.MkdirAll(filepath.Dir(privatePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for private key: %w", err)
	}

	if err := os.WriteFile(privatePath, []byte(kp.PrivateKeyPEM()), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}
