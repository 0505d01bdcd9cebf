package ca

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/secmail/secmaild/internal/models"
	"github.com/secmail/secmaild/pkg/certpem"
)

// LoadOrCreateRoot loads the persisted root key pair and self-signed
// certificate, or creates and persists them on first startup. The root
// is never rotated after creation.
func LoadOrCreateRoot(name, privatePath, certPath string, rootValidity time.Duration) (*KeyPair, *models.Certificate, error) {
	if _, err := os.Stat(privatePath); err == nil {
		return loadRoot(privatePath, certPath)
	}

	return createRoot(name, privatePath, certPath, rootValidity)
}

func loadRoot(privatePath, certPath string) (*KeyPair, *models.Certificate, error) {
	kp, err := loadKeyPair(privatePath)
	if err != nil {
		return nil, nil, err
	}

	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read root certificate: %w", err)
	}

	root, err := certpem.DecodeCertificate(string(certBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}

	// A root that does not verify against its own key means the key and
	// certificate files are out of sync.
	if !verifyCertificate(root, kp.PublicKey) {
		return nil, nil, fmt.Errorf("root certificate does not match CA key")
	}

	return kp, root, nil
}

func createRoot(name, privatePath, certPath string, rootValidity time.Duration) (*KeyPair, *models.Certificate, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}

	pubPEM, err := kp.PublicKeyPEM()
	if err != nil {
		return nil, nil, err
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	root := &models.Certificate{
		SerialNumber:     serial,
		SubjectName:      name,
		SubjectEmail:     "",
		SubjectPublicKey: pubPEM,
		Issuer:           name,
		IssuedAt:         now,
		ExpiresAt:        now.Add(rootValidity),
	}

	sig, err := signCertificate(root, kp)
	if err != nil {
		return nil, nil, err
	}
	root.CASignature = sig

	if err := saveKeyPair(kp, privatePath); err != nil {
		return nil, nil, err
	}

	rootPEM, err := certpem.EncodeCertificate(root)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create directory for root certificate: %w", err)
	}
	if err := os.WriteFile(certPath, []byte(rootPEM), 0644); err != nil {
		return nil, nil, fmt.Errorf("failed to write root certificate: %w", err)
	}

	return kp, root, nil
}
