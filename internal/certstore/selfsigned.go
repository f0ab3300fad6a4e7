package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/darmiel/entitled/internal/core"
)

// GenerateSelfSigned creates a self-signed RSA certificate suitable for
// signing or encrypting entitlement tokens in test and development setups.
// Production deployments source their certificates elsewhere.
func GenerateSelfSigned(commonName string, validFor time.Duration) (*core.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validFor),
		KeyUsage: x509.KeyUsageDigitalSignature |
			x509.KeyUsageKeyEncipherment |
			x509.KeyUsageDataEncipherment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing generated certificate: %w", err)
	}

	return &core.Certificate{X509: cert, Key: key}, nil
}

// WritePEM writes the certificate and, when present, its private key to a
// single PEM file readable by NewDirectoryStore.
func WritePEM(cert *core.Certificate, path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := pem.Encode(file, &pem.Block{Type: "CERTIFICATE", Bytes: cert.X509.Raw}); err != nil {
		return fmt.Errorf("writing certificate block: %w", err)
	}

	if cert.HasPrivateKey() {
		keyBytes, err := x509.MarshalPKCS8PrivateKey(cert.Key)
		if err != nil {
			return fmt.Errorf("marshaling private key: %w", err)
		}
		if err := pem.Encode(file, &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}); err != nil {
			return fmt.Errorf("writing private key block: %w", err)
		}
	}

	return nil
}
