// Package certpem converts certificates and RSA key material to and from
// PEM text. Certificates travel to clients as PEM blocks (base64 wrapped
// at 64 characters) but are handled as structured records internally.
package certpem

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/secmail/secmaild/internal/models"
)

// PEM block types
const (
	certificateBlockType = "SECMAIL CERTIFICATE"
	publicKeyBlockType   = "PUBLIC KEY"
	privateKeyBlockType  = "RSA PRIVATE KEY"
)

// EncodeCertificate renders a certificate record as a PEM block
func EncodeCertificate(cert *models.Certificate) (string, error) {
	data, err := json.Marshal(cert)
	if err != nil {
		return "", fmt.Errorf("failed to marshal certificate: %w", err)
	}

	block := &pem.Block{
		Type:  certificateBlockType,
		Bytes: data,
	}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodeCertificate parses a PEM-armored certificate record
func DecodeCertificate(pemText string) (*models.Certificate, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if block.Type != certificateBlockType {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}

	cert := &models.Certificate{}
	if err := json.Unmarshal(block.Bytes, cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}

	return cert, nil
}

// EncodePublicKey renders an RSA public key as PKIX PEM
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	block := &pem.Block{
		Type:  publicKeyBlockType,
		Bytes: der,
	}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKey parses a PEM-encoded RSA public key (PKIX or PKCS#1)
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaPub, nil
	}

	rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return rsaPub, nil
}

// EncodePrivateKey renders an RSA private key as PKCS#1 PEM
func EncodePrivateKey(priv *rsa.PrivateKey) string {
	block := &pem.Block{
		Type:  privateKeyBlockType,
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}
	return string(pem.EncodeToMemory(block))
}

// ParsePrivateKey parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8)
func ParsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return priv, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaPriv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaPriv, nil
}
