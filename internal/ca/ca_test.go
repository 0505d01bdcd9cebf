package ca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secmail/secmaild/internal/db"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/models"
)

func testStore(t *testing.T) *repository.CertRepository {
	t.Helper()

	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database))
	return repository.NewCertRepository(database.DB)
}

func newTestCA(t *testing.T) *CA {
	t.Helper()
	return newTestCAWithValidity(t, 365*24*time.Hour)
}

func newTestCAWithValidity(t *testing.T, validity time.Duration) *CA {
	t.Helper()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	pubPEM, err := kp.PublicKeyPEM()
	require.NoError(t, err)

	serial, err := newSerialNumber()
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	root := &models.Certificate{
		SerialNumber:     serial,
		SubjectName:      "Test Root CA",
		SubjectPublicKey: pubPEM,
		Issuer:           "Test Root CA",
		IssuedAt:         now,
		ExpiresAt:        now.Add(10 * 365 * 24 * time.Hour),
	}
	sig, err := signCertificate(root, kp)
	require.NoError(t, err)
	root.CASignature = sig

	return New("Test Root CA", validity, kp, root, testStore(t))
}

func subjectKeyPEM(t *testing.T) string {
	t.Helper()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	pubPEM, err := kp.PublicKeyPEM()
	require.NoError(t, err)
	return pubPEM
}

func TestIssueAndValidate(t *testing.T) {
	authority := newTestCA(t)

	cert, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	assert.Len(t, cert.SerialNumber, 32) // 128 bits hex-encoded
	assert.Equal(t, "Alice", cert.SubjectName)
	assert.Equal(t, "alice@example.com", cert.SubjectEmail)
	assert.Equal(t, "Test Root CA", cert.Issuer)
	assert.True(t, cert.IssuedAt.Before(cert.ExpiresAt))
	assert.NotEmpty(t, cert.CASignature)
	assert.False(t, cert.Revoked)

	result, err := authority.Validate(cert)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
	assert.True(t, result.Valid())

	// The stored copy validates identically
	stored, err := authority.GetBySerialNumber(cert.SerialNumber)
	require.NoError(t, err)
	result, err = authority.Validate(stored)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
}

func TestIssueDuplicateActiveSubject(t *testing.T) {
	authority := newTestCA(t)

	_, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	_, err = authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	assert.ErrorIs(t, err, repository.ErrDuplicateActiveSubject)

	// A different subject is unaffected
	_, err = authority.Issue("Bob", "bob@example.com", subjectKeyPEM(t))
	assert.NoError(t, err)
}

func TestRevokeLifecycle(t *testing.T) {
	authority := newTestCA(t)

	cert, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	require.NoError(t, authority.Revoke(cert.SerialNumber, models.RevocationKeyCompromise))

	result, err := authority.Validate(cert)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, result.Status)
	assert.Equal(t, models.RevocationKeyCompromise, result.RevocationReason)

	stored, err := authority.GetBySerialNumber(cert.SerialNumber)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
	assert.NotNil(t, stored.RevokedAt)

	// Revocation is terminal
	err = authority.Revoke(cert.SerialNumber, models.RevocationSuperseded)
	assert.ErrorIs(t, err, repository.ErrAlreadyRevoked)

	// Unknown serials are reported as missing
	err = authority.Revoke("00000000000000000000000000000000", models.RevocationUnspecified)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestActiveCertificateNonUTCLocalZone(t *testing.T) {
	// The driver binds time.Time with its zone offset and sqlite compares
	// the strings lexicographically, so the lookup instant must be UTC
	// like the stored timestamps. With a local zone east of UTC and a
	// validity shorter than the offset, a local-time bound would make
	// this certificate invisible.
	origLocal := time.Local
	time.Local = time.FixedZone("UTC+9", 9*60*60)
	defer func() { time.Local = origLocal }()

	authority := newTestCAWithValidity(t, time.Hour)

	cert, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	active, err := authority.ActiveCertificate("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, cert.SerialNumber, active.SerialNumber)

	// The duplicate-active check sees it too
	_, err = authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	assert.ErrorIs(t, err, repository.ErrDuplicateActiveSubject)
}

func TestReissueAfterRevocation(t *testing.T) {
	authority := newTestCA(t)

	first, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	require.NoError(t, authority.Revoke(first.SerialNumber, models.RevocationKeyCompromise))

	second, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)
	assert.NotEqual(t, first.SerialNumber, second.SerialNumber)

	result, err := authority.Validate(second)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)

	// The old certificate stays revoked
	result, err = authority.Validate(first)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, result.Status)
}

func TestValidateExpired(t *testing.T) {
	authority := newTestCA(t)

	// A correctly signed certificate whose window has passed
	serial, err := newSerialNumber()
	require.NoError(t, err)
	cert := &models.Certificate{
		SerialNumber:     serial,
		SubjectName:      "Alice",
		SubjectEmail:     "alice@example.com",
		SubjectPublicKey: subjectKeyPEM(t),
		Issuer:           authority.name,
		IssuedAt:         time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second),
		ExpiresAt:        time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second),
	}
	cert.CASignature, err = signCertificate(cert, authority.keyPair)
	require.NoError(t, err)

	result, err := authority.Validate(cert)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, result.Status)
}

func TestValidateForeignCA(t *testing.T) {
	ours := newTestCA(t)
	theirs := newTestCA(t)

	cert, err := theirs.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	result, err := ours.Validate(cert)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidSignature, result.Status)
}

func TestValidateTamperedCertificate(t *testing.T) {
	authority := newTestCA(t)

	cert, err := authority.Issue("Alice", "alice@example.com", subjectKeyPEM(t))
	require.NoError(t, err)

	tampered := *cert
	tampered.SubjectEmail = "mallory@example.com"

	result, err := authority.Validate(&tampered)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidSignature, result.Status)
}

func TestRootIsSelfSigned(t *testing.T) {
	authority := newTestCA(t)

	result, err := authority.Validate(authority.Root())
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
}

func TestListOrderedByIssuance(t *testing.T) {
	authority := newTestCA(t)

	emails := []string{"a@example.com", "b@example.com", "c@example.com"}
	serials := map[string]bool{}
	for _, email := range emails {
		cert, err := authority.Issue("User", email, subjectKeyPEM(t))
		require.NoError(t, err)
		serials[cert.SerialNumber] = true
	}

	certs, err := authority.List()
	require.NoError(t, err)
	require.Len(t, certs, len(emails))

	for i, cert := range certs {
		assert.True(t, serials[cert.SerialNumber])
		if i > 0 {
			assert.False(t, cert.IssuedAt.Before(certs[i-1].IssuedAt))
		}
	}
}

func TestSerialNumbersUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		serial, err := newSerialNumber()
		require.NoError(t, err)
		assert.Len(t, serial, 32)
		assert.False(t, seen[serial])
		seen[serial] = true
	}
}

func TestLoadOrCreateRoot(t *testing.T) {
	dir := t.TempDir()
	privPath := dir + "/ca.key"
	certPath := dir + "/ca.crt"

	kp, root, err := LoadOrCreateRoot("Test Root CA", privPath, certPath, 10*365*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, kp)
	assert.Equal(t, "Test Root CA", root.SubjectName)
	assert.Equal(t, root.SubjectName, root.Issuer)
	assert.True(t, verifyCertificate(root, kp.PublicKey))

	// A second startup loads the same root instead of rotating it
	kp2, root2, err := LoadOrCreateRoot("Test Root CA", privPath, certPath, 10*365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, root.SerialNumber, root2.SerialNumber)
	assert.Equal(t, kp.PrivateKey.N, kp2.PrivateKey.N)
}

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, kp.PrivateKey.N.BitLen(), 2048)
	assert.Equal(t, kp.PublicKey, &kp.PrivateKey.PublicKey)
}
