// Package certstore locates certificates for the token codec. Certificates
// and their keys live as PEM files in a single directory; they are indexed by
// SHA-1 and SHA-256 thumbprint at load time.
package certstore

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/darmiel/entitled/internal/core"
)

var _ core.CertificateLocator = (*DirectoryStore)(nil)

// DirectoryStore is an immutable snapshot of the PEM files found in a
// directory. Reload by constructing a new store.
type DirectoryStore struct {
	byThumbprint map[string]*core.Certificate
	certificates []*core.Certificate
}

// NewDirectoryStore scans dir for *.pem files. Each file may contain any mix
// of CERTIFICATE and PRIVATE KEY blocks; keys are matched to certificates by
// comparing public keys, so cert and key may live in separate files.
func NewDirectoryStore(dir string, logger zerolog.Logger) (*DirectoryStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading certificate directory: %w", err)
	}

	var certs []*x509.Certificate
	var keys []crypto.Signer

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pem") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		fileCerts, fileKeys, err := parsePEM(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		certs = append(certs, fileCerts...)
		keys = append(keys, fileKeys...)
	}

	store := &DirectoryStore{
		byThumbprint: make(map[string]*core.Certificate),
	}
	for _, cert := range certs {
		entry := &core.Certificate{X509: cert, Key: matchKey(cert, keys)}
		store.certificates = append(store.certificates, entry)
		store.byThumbprint[entry.Thumbprint()] = entry
		store.byThumbprint[entry.ThumbprintSHA256()] = entry
	}

	sort.Slice(store.certificates, func(i, j int) bool {
		return store.certificates[i].X509.Subject.CommonName < store.certificates[j].X509.Subject.CommonName
	})

	logger.Debug().
		Int("certificates", len(store.certificates)).
		Str("dir", dir).
		Msg("loaded certificate store")

	return store, nil
}

// FindByThumbprint resolves a SHA-1 or SHA-256 hex thumbprint. Separators
// and case are ignored so thumbprints copied from other tools work as-is.
func (s *DirectoryStore) FindByThumbprint(thumbprint string) (*core.Certificate, error) {
	cert, ok := s.byThumbprint[NormalizeThumbprint(thumbprint)]
	if !ok {
		return nil, fmt.Errorf("no certificate with thumbprint %s: %w",
			thumbprint, core.ErrCertificateNotFound)
	}
	return cert, nil
}

// List returns all certificates in the store, sorted by subject.
func (s *DirectoryStore) List() []*core.Certificate {
	return s.certificates
}

// NormalizeThumbprint lowercases a thumbprint and strips the separators
// commonly inserted by certificate tooling.
func NormalizeThumbprint(thumbprint string) string {
	replacer := strings.NewReplacer(":", "", " ", "", "-", "")
	return strings.ToLower(replacer.Replace(thumbprint))
}

func parsePEM(data []byte) ([]*x509.Certificate, []crypto.Signer, error) {
	var certs []*x509.Certificate
	var keys []crypto.Signer

	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing certificate block: %w", err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY":
			parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing private key block: %w", err)
			}
			signer, ok := parsed.(crypto.Signer)
			if !ok {
				return nil, nil, fmt.Errorf("unsupported private key type %T", parsed)
			}
			keys = append(keys, signer)
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing RSA private key block: %w", err)
			}
			keys = append(keys, key)
		default:
			// ignore unrelated blocks (EC params, CRLs, ...)
		}
	}

	return certs, keys, nil
}

func matchKey(cert *x509.Certificate, keys []crypto.Signer) crypto.Signer {
	for _, key := range keys {
		if publicKeysEqual(cert.PublicKey, key.Public()) {
			return key
		}
	}
	return nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	if ae, ok := a.(equaler); ok {
		return ae.Equal(b)
	}
	return false
}
