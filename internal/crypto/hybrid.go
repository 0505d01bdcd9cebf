package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"
)

// ErrDecryption is the single failure returned for any decryption
// problem: malformed payload, key-unwrap failure, or authentication-tag
// mismatch. Callers must not be able to tell which step failed.
var ErrDecryption = errors.New("decryption failed")

const (
	payloadVersion = 1
	sessionKeySize = 32 // AES-256
)

// hybridPayload is the wire container for an encrypted message. The GCM
// authentication tag is appended to Ciphertext by the cipher.
type hybridPayload struct {
	Version    int    `cbor:"1,keyasint"`
	WrappedKey []byte `cbor:"2,keyasint"`
	Nonce      []byte `cbor:"3,keyasint"`
	Ciphertext []byte `cbor:"4,keyasint"`
}

// Encrypt seals plaintext for the holder of the recipient private key.
// Each call draws a fresh AES-256 session key and nonce, encrypts with
// AES-GCM, wraps the session key with RSA-OAEP, and returns the packaged
// payload as base64 text.
func Encrypt(plaintext []byte, recipient *rsa.PublicKey) (string, error) {
	sessionKey := make([]byte, sessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient, sessionKey, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap session key: %w", err)
	}

	payload, err := cbor.Marshal(hybridPayload{
		Version:    payloadVersion,
		WrappedKey: wrappedKey,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to package payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt opens a payload produced by Encrypt. Every failure surfaces as
// ErrDecryption; the underlying cause is logged for operators only.
func Decrypt(encoded string, recipient *rsa.PrivateKey) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, opaqueFailure("payload decode", err)
	}

	var payload hybridPayload
	if err := cbor.Unmarshal(raw, &payload); err != nil {
		return nil, opaqueFailure("payload parse", err)
	}
	if payload.Version != payloadVersion {
		return nil, opaqueFailure("payload version", fmt.Errorf("unsupported version %d", payload.Version))
	}

	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, recipient, payload.WrappedKey, nil)
	if err != nil {
		return nil, opaqueFailure("key unwrap", err)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, opaqueFailure("cipher init", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, opaqueFailure("gcm init", err)
	}

	if len(payload.Nonce) != gcm.NonceSize() {
		return nil, opaqueFailure("nonce size", fmt.Errorf("got %d bytes", len(payload.Nonce)))
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, opaqueFailure("authenticated decrypt", err)
	}

	return plaintext, nil
}

// opaqueFailure logs the real cause server-side and returns the uniform
// decryption error.
func opaqueFailure(stage string, err error) error {
	log.Printf("decrypt failure at %s: %v", stage, err)
	return ErrDecryption
}
