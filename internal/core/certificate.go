package core

import (
	"crypto"
	"crypto/sha1" //nolint:gosec // thumbprints are identifiers, not integrity checks
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
)

// ErrCertificateNotFound is returned by a CertificateLocator when no
// certificate matches the requested thumbprint.
var ErrCertificateNotFound = errors.New("certificate not found")

// Certificate bundles an X.509 certificate with its private key, if held.
// Tokens are signed and decrypted with the private key; verified and
// encrypted with the public key from the certificate itself.
type Certificate struct {
	X509 *x509.Certificate

	// Key is nil when only the public half is available.
	Key crypto.Signer
}

// HasPrivateKey reports whether the private key material is available.
func (c *Certificate) HasPrivateKey() bool {
	return c != nil && c.Key != nil
}

// PublicKey returns the certificate's public key.
func (c *Certificate) PublicKey() crypto.PublicKey {
	if c == nil || c.X509 == nil {
		return nil
	}
	return c.X509.PublicKey
}

// Thumbprint returns the hex-encoded SHA-1 digest of the DER certificate,
// the classic thumbprint format.
func (c *Certificate) Thumbprint() string {
	sum := sha1.Sum(c.X509.Raw) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// ThumbprintSHA256 returns the hex-encoded SHA-256 digest of the DER
// certificate.
func (c *Certificate) ThumbprintSHA256() string {
	sum := sha256.Sum256(c.X509.Raw)
	return hex.EncodeToString(sum[:])
}

// CertificateLocator resolves a thumbprint to a usable certificate. The core
// never reads certificates from disk or an OS store itself.
type CertificateLocator interface {
	// FindByThumbprint returns the certificate matching the given SHA-1 or
	// SHA-256 hex thumbprint, or ErrCertificateNotFound.
	FindByThumbprint(thumbprint string) (*Certificate, error)
}
