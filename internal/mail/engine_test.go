package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/crypto"
	"github.com/secmail/secmaild/internal/db"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/models"
)

type testEnv struct {
	authority *ca.CA
	engine    *Engine
	emails    *repository.EmailRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	certRepo := repository.NewCertRepository(database.DB)
	emailRepo := repository.NewEmailRepository(database.DB)

	dir := t.TempDir()
	rootKP, root, err := ca.LoadOrCreateRoot("Test Root CA", dir+"/ca.key", dir+"/ca.crt", 10*365*24*time.Hour)
	require.NoError(t, err)

	authority := ca.New("Test Root CA", 365*24*time.Hour, rootKP, root, certRepo)

	return &testEnv{
		authority: authority,
		engine:    NewEngine(authority, emailRepo),
		emails:    emailRepo,
	}
}

// register issues a certificate for an email and returns the private key PEM
func (env *testEnv) register(t *testing.T, name, email string) string {
	t.Helper()

	kp, err := ca.GenerateKeyPair()
	require.NoError(t, err)

	pubPEM, err := kp.PublicKeyPEM()
	require.NoError(t, err)

	_, err = env.authority.Issue(name, email, pubPEM)
	require.NoError(t, err)

	return kp.PrivateKeyPEM()
}

func TestSendAndRead(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")
	bobPriv := env.register(t, "Bob", "bob@example.com")

	record, err := env.engine.Send("alice@example.com", "bob@example.com", "hello", "hi bob", alicePriv)
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.NotEmpty(t, record.EncryptedContent)
	assert.NotEmpty(t, record.Signature)
	assert.NotEqual(t, "hi bob", record.EncryptedContent)
	assert.NotEqual(t, record.EncryptedContent, record.Signature)

	// The record is persisted
	stored, err := env.emails.GetByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.EncryptedContent, stored.EncryptedContent)

	plaintext, result, err := env.engine.Read(stored, bobPriv)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", plaintext)
	assert.True(t, result.SignatureValid)
	assert.False(t, result.SenderCertificateRevoked)
}

func TestSendIdenticalContentDiffers(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")
	env.register(t, "Bob", "bob@example.com")

	first, err := env.engine.Send("alice@example.com", "bob@example.com", "hello", "same content", alicePriv)
	require.NoError(t, err)
	second, err := env.engine.Send("alice@example.com", "bob@example.com", "hello", "same content", alicePriv)
	require.NoError(t, err)

	// Fresh session key and nonce per message
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.EncryptedContent, second.EncryptedContent)
}

func TestReadTamperedSubjectFailsVerification(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")
	bobPriv := env.register(t, "Bob", "bob@example.com")

	record, err := env.engine.Send("alice@example.com", "bob@example.com", "original", "content", alicePriv)
	require.NoError(t, err)

	record.Subject = "tampered"

	plaintext, result, err := env.engine.Read(record, bobPriv)
	require.NoError(t, err)
	assert.Equal(t, "content", plaintext)
	assert.False(t, result.SignatureValid)
}

func TestReadWithWrongKeyFails(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")
	env.register(t, "Bob", "bob@example.com")
	malloryPriv := env.register(t, "Mallory", "mallory@example.com")

	record, err := env.engine.Send("alice@example.com", "bob@example.com", "hello", "for bob", alicePriv)
	require.NoError(t, err)

	_, _, err = env.engine.Read(record, malloryPriv)
	assert.ErrorIs(t, err, crypto.ErrDecryption)
}

func TestSendWithoutSenderCertificate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Bob", "bob@example.com")

	kp, err := ca.GenerateKeyPair()
	require.NoError(t, err)

	_, err = env.engine.Send("nobody@example.com", "bob@example.com", "hello", "content", kp.PrivateKeyPEM())
	assert.ErrorIs(t, err, ErrCertificateNotValid)
}

func TestSendToUnknownRecipient(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")

	_, err := env.engine.Send("alice@example.com", "nobody@example.com", "hello", "content", alicePriv)
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestSendWithRevokedSenderCertificate(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")
	env.register(t, "Bob", "bob@example.com")

	cert, err := env.authority.LatestCertificate("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, env.authority.Revoke(cert.SerialNumber, models.RevocationKeyCompromise))

	_, err = env.engine.Send("alice@example.com", "bob@example.com", "hello", "content", alicePriv)
	assert.ErrorIs(t, err, ErrCertificateNotValid)
}

func TestSendWithMismatchedPrivateKey(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Alice", "alice@example.com")
	env.register(t, "Bob", "bob@example.com")

	other, err := ca.GenerateKeyPair()
	require.NoError(t, err)

	_, err = env.engine.Send("alice@example.com", "bob@example.com", "hello", "content", other.PrivateKeyPEM())
	assert.ErrorIs(t, err, ErrSenderKeyMismatch)
}

func TestRevocationAfterSendFlaggedAtRead(t *testing.T) {
	env := newTestEnv(t)
	alicePriv := env.register(t, "Alice", "alice@example.com")
	bobPriv := env.register(t, "Bob", "bob@example.com")

	record, err := env.engine.Send("alice@example.com", "bob@example.com", "hello", "content", alicePriv)
	require.NoError(t, err)

	cert, err := env.authority.LatestCertificate("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, env.authority.Revoke(cert.SerialNumber, models.RevocationKeyCompromise))

	// The signature still verifies, but the revocation is reported
	// distinctly so the reader can downgrade trust.
	plaintext, result, err := env.engine.Read(record, bobPriv)
	require.NoError(t, err)
	assert.Equal(t, "content", plaintext)
	assert.True(t, result.SignatureValid)
	assert.True(t, result.SenderCertificateRevoked)
	assert.Equal(t, models.RevocationKeyCompromise, result.RevocationReason)
}
