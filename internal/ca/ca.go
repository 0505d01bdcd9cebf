package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/secmail/secmaild/internal/crypto"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/models"
)

// CA is the certificate authority. It exclusively owns certificate
// issuance and the revocation flag; everything else only reads
// certificates through it.
type CA struct {
	name     string
	validity time.Duration
	keyPair  *KeyPair
	root     *models.Certificate
	certs    *repository.CertRepository

	// mu serializes issuance so the one-active-certificate-per-email
	// check-then-insert is atomic across the process.
	mu sync.Mutex
}

// New creates a CA from loaded root material
func New(name string, validity time.Duration, keyPair *KeyPair, root *models.Certificate, certs *repository.CertRepository) *CA {
	return &CA{
		name:     name,
		validity: validity,
		keyPair:  keyPair,
		root:     root,
		certs:    certs,
	}
}

// Issue creates, signs and stores a certificate binding the subject to
// its public key. Fails with repository.ErrDuplicateActiveSubject when an
// active certificate already exists for the email.
func (ca *CA) Issue(subjectName, subjectEmail, subjectPublicKeyPEM string) (*models.Certificate, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	serial, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	cert := &models.Certificate{
		SerialNumber:     serial,
		SubjectName:      subjectName,
		SubjectEmail:     subjectEmail,
		SubjectPublicKey: subjectPublicKeyPEM,
		Issuer:           ca.name,
		IssuedAt:         now,
		ExpiresAt:        now.Add(ca.validity),
	}

	sig, err := signCertificate(cert, ca.keyPair)
	if err != nil {
		return nil, err
	}
	cert.CASignature = sig

	if err := ca.certs.CreateIfNoActive(cert, now); err != nil {
		return nil, err
	}

	return cert, nil
}

// Status is the outcome of certificate validation
type Status int

// Validation outcomes, checked in this order
const (
	StatusValid Status = iota
	StatusInvalidSignature
	StatusExpired
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalidSignature:
		return "invalid_signature"
	case StatusExpired:
		return "expired"
	case StatusRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ValidationResult distinguishes each validation failure kind so callers
// can report precise reasons.
type ValidationResult struct {
	Status           Status
	RevocationReason string
}

// Valid reports whether validation passed
func (r ValidationResult) Valid() bool {
	return r.Status == StatusValid
}

// Validate checks a certificate: CA signature first, then the validity
// window, then revocation status against the store.
func (ca *CA) Validate(cert *models.Certificate) (ValidationResult, error) {
	if !verifyCertificate(cert, ca.keyPair.PublicKey) {
		return ValidationResult{Status: StatusInvalidSignature}, nil
	}

	if cert.IsExpiredAt(time.Now()) {
		return ValidationResult{Status: StatusExpired}, nil
	}

	// Revocation is checked against the store, not the presented copy,
	// so a stale client-held certificate cannot hide a revocation.
	stored, err := ca.certs.GetBySerialNumber(cert.SerialNumber)
	if err == nil && stored.Revoked {
		return ValidationResult{
			Status:           StatusRevoked,
			RevocationReason: stored.RevocationReason,
		}, nil
	}
	if err != nil && err != repository.ErrNotFound {
		return ValidationResult{}, fmt.Errorf("failed to check revocation: %w", err)
	}

	return ValidationResult{Status: StatusValid}, nil
}

// Revoke terminally marks a certificate as untrusted. Returns
// repository.ErrNotFound or repository.ErrAlreadyRevoked as appropriate.
func (ca *CA) Revoke(serialNumber, reason string) error {
	if reason == "" {
		reason = models.RevocationUnspecified
	}
	return ca.certs.Revoke(serialNumber, reason, time.Now().UTC().Truncate(time.Second))
}

// Root returns the CA's self-signed root certificate
func (ca *CA) Root() *models.Certificate {
	return ca.root
}

// List returns all issued certificates ordered by issuance time ascending
func (ca *CA) List() ([]*models.Certificate, error) {
	return ca.certs.List()
}

// ActiveCertificate returns the active certificate for an email. The
// lookup instant is UTC: timestamps are stored in UTC and the driver
// binds time.Time with its zone offset intact, so a local-time bound
// would make the expiry comparison zone-dependent.
func (ca *CA) ActiveCertificate(email string) (*models.Certificate, error) {
	return ca.certs.GetActiveByEmail(email, time.Now().UTC())
}

// LatestCertificate returns the most recent certificate for an email
// regardless of status
func (ca *CA) LatestCertificate(email string) (*models.Certificate, error) {
	return ca.certs.GetLatestByEmail(email)
}

// GetBySerialNumber returns the stored certificate for a serial number
func (ca *CA) GetBySerialNumber(serial string) (*models.Certificate, error) {
	return ca.certs.GetBySerialNumber(serial)
}

// newSerialNumber draws a random 128-bit serial. The primary key
// constraint on the store is the collision backstop.
func newSerialNumber() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate serial number: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// signedCertFields is the canonical form of everything the CA signature
// covers: all certificate fields except the signature and the mutable
// revocation state. Times are Unix seconds so storage round-trips cannot
// perturb the encoding.
type signedCertFields struct {
	SerialNumber     string `cbor:"1,keyasint"`
	SubjectName      string `cbor:"2,keyasint"`
	SubjectEmail     string `cbor:"3,keyasint"`
	SubjectPublicKey string `cbor:"4,keyasint"`
	Issuer           string `cbor:"5,keyasint"`
	IssuedAt         int64  `cbor:"6,keyasint"`
	ExpiresAt        int64  `cbor:"7,keyasint"`
}

func certDigest(cert *models.Certificate) ([]byte, error) {
	data, err := crypto.MarshalCanonical(signedCertFields{
		SerialNumber:     cert.SerialNumber,
		SubjectName:      cert.SubjectName,
		SubjectEmail:     cert.SubjectEmail,
		SubjectPublicKey: cert.SubjectPublicKey,
		Issuer:           cert.Issuer,
		IssuedAt:         cert.IssuedAt.Unix(),
		ExpiresAt:        cert.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	return digest[:], nil
}

func signCertificate(cert *models.Certificate, kp *KeyPair) ([]byte, error) {
	digest, err := certDigest(cert)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.SignDigest(digest, kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}

	return sig, nil
}

func verifyCertificate(cert *models.Certificate, caPub *rsa.PublicKey) bool {
	digest, err := certDigest(cert)
	if err != nil {
		return false
	}
	return crypto.VerifyDigest(digest, cert.CASignature, caPub)
}
