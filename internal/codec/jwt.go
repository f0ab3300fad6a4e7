// Package codec encodes entitlement tokens as RS512-signed JWTs, optionally
// wrapped in a JWE envelope (RSA-OAEP key wrap, A256CBC-HS512 content
// encryption) so only the holder of the encryption certificate's private key
// can read the claims.
package codec

import (
	"crypto/rsa"
	"fmt"
	"net/netip"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/darmiel/entitled/internal/core"
)

var _ core.TokenCodec = (*Codec)(nil)

// Codec signs/verifies with the signing certificate and encrypts/decrypts
// with the optional encryption certificate. A server instance typically holds
// the public half for verification and the private half for decryption; the
// minting CLI holds the opposite sides.
type Codec struct {
	signing    *core.Certificate
	encryption *core.Certificate
	audience   string
	issuer     string
	logger     zerolog.Logger
}

type Option func(*Codec)

// WithEncryptionCertificate enables the JWE envelope on Encode and allows
// Decode to unwrap encrypted tokens.
func WithEncryptionCertificate(cert *core.Certificate) Option {
	return func(c *Codec) {
		c.encryption = cert
	}
}

// WithExpectedAudience makes Decode reject tokens minted for a different
// audience.
func WithExpectedAudience(audience string) Option {
	return func(c *Codec) {
		c.audience = audience
	}
}

// WithExpectedIssuer makes Decode reject tokens minted by a different issuer.
func WithExpectedIssuer(issuer string) Option {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

// New creates a Codec around the given signing certificate. A nil signing
// certificate or a non-RSA key is a wiring bug and fails construction.
func New(signing *core.Certificate, opts ...Option) (*Codec, error) {
	if signing == nil || signing.X509 == nil {
		return nil, fmt.Errorf("signing certificate is required")
	}
	if _, ok := signing.PublicKey().(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("signing certificate %s does not hold an RSA key", signing.Thumbprint())
	}

	c := &Codec{
		signing: signing,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.encryption != nil {
		if _, ok := c.encryption.PublicKey().(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("encryption certificate %s does not hold an RSA key", c.encryption.Thumbprint())
		}
	}
	return c, nil
}

// Encode serializes the token's claims, signs them with the signing
// certificate's private key and, if an encryption certificate is configured,
// wraps the result in a JWE envelope.
func (c *Codec) Encode(token core.EntitlementToken) (string, error) {
	if err := token.Validate(); err != nil {
		return "", codecError(KindInvalidClaims, "token is not mintable", err)
	}
	if !c.signing.HasPrivateKey() {
		return "", codecError(KindMissingKeyMaterial,
			fmt.Sprintf("signing certificate %s has no private key", c.signing.Thumbprint()), nil)
	}

	builder := jwt.NewBuilder().
		Issuer(token.Issuer).
		Audience([]string{token.Audience}).
		NotBefore(token.NotBefore).
		Expiration(token.NotAfter).
		IssuedAt(token.IssuedAt).
		Claim(core.ClaimApplication, token.Applications)

	if token.ID != "" {
		builder = builder.Claim(core.ClaimTokenID, token.ID)
	}
	if token.VirtualMachineID != "" {
		builder = builder.Claim(core.ClaimVirtualMachineID, token.VirtualMachineID)
	}
	if len(token.IPAddresses) > 0 {
		addresses := make([]string, len(token.IPAddresses))
		for i, addr := range token.IPAddresses {
			addresses[i] = addr.String()
		}
		builder = builder.Claim(core.ClaimIPAddress, addresses)
	}

	built, err := builder.Build()
	if err != nil {
		return "", codecError(KindInvalidClaims, "building token claims", err)
	}

	c.logger.Debug().
		Str("issuer", token.Issuer).
		Str("audience", token.Audience).
		Time("not_before", token.NotBefore).
		Time("not_after", token.NotAfter).
		Str("signing_thumbprint", c.signing.Thumbprint()).
		Msg("signing entitlement token")

	signed, err := jwt.Sign(built, jwt.WithKey(jwa.RS512, c.signing.Key))
	if err != nil {
		return "", codecError(KindSignatureInvalid, "signing token", err)
	}

	if c.encryption == nil {
		return string(signed), nil
	}

	c.logger.Debug().
		Str("encryption_thumbprint", c.encryption.Thumbprint()).
		Msg("encrypting entitlement token")

	encrypted, err := jwe.Encrypt(signed,
		jwe.WithKey(jwa.RSA_OAEP, c.encryption.PublicKey()),
		jwe.WithContentEncryption(jwa.A256CBC_HS512))
	if err != nil {
		return "", codecError(KindDecryptionFailed, "encrypting token", err)
	}
	return string(encrypted), nil
}

// Decode reverses Encode: unwrap the JWE envelope if present, verify the
// signature, then extract claims. All failures are *CodecError so callers
// can treat them as outright rejection rather than a business denial.
func (c *Codec) Decode(raw string) (*core.EntitlementToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, codecError(KindMalformed, "token is empty", nil)
	}

	payload := []byte(raw)

	// A compact JWE has five segments, a compact JWS three.
	if strings.Count(raw, ".") == 4 {
		if c.encryption == nil || !c.encryption.HasPrivateKey() {
			return nil, codecError(KindDecryptionFailed,
				"token is encrypted but no decryption certificate is configured", nil)
		}
		decrypted, err := jwe.Decrypt(payload, jwe.WithKey(jwa.RSA_OAEP, c.encryption.Key))
		if err != nil {
			return nil, codecError(KindDecryptionFailed, "decrypting token", err)
		}
		payload = decrypted
	}

	if _, err := jws.Parse(payload); err != nil {
		return nil, codecError(KindMalformed, "token is not well formed", err)
	}

	// Lifetime validation is deliberately left to the verifier so that
	// window failures can be aggregated with the other business checks.
	parsed, err := jwt.Parse(payload,
		jwt.WithKey(jwa.RS512, c.signing.PublicKey()),
		jwt.WithValidate(false))
	if err != nil {
		return nil, codecError(KindSignatureInvalid, "token signature does not verify", err)
	}

	return c.extractClaims(parsed)
}

func (c *Codec) extractClaims(parsed jwt.Token) (*core.EntitlementToken, error) {
	if parsed.Expiration().IsZero() {
		return nil, codecError(KindInvalidClaims, "missing token expiration", nil)
	}

	audience := ""
	if auds := parsed.Audience(); len(auds) > 0 {
		audience = auds[0]
	}
	if c.audience != "" && audience != c.audience {
		return nil, codecError(KindInvalidClaims, fmt.Sprintf("invalid audience %q", audience), nil)
	}
	if c.issuer != "" && parsed.Issuer() != c.issuer {
		return nil, codecError(KindInvalidClaims, fmt.Sprintf("invalid issuer %q", parsed.Issuer()), nil)
	}

	applications, err := stringsClaim(parsed, core.ClaimApplication)
	if err != nil {
		return nil, codecError(KindInvalidClaims, "reading application claims", err)
	}
	if len(applications) == 0 {
		return nil, codecError(KindInvalidClaims, "token grants no applications", nil)
	}

	addressClaims, err := stringsClaim(parsed, core.ClaimIPAddress)
	if err != nil {
		return nil, codecError(KindInvalidClaims, "reading address claims", err)
	}
	addresses := make([]netip.Addr, 0, len(addressClaims))
	for _, s := range addressClaims {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, codecError(KindInvalidClaims, fmt.Sprintf("invalid address claim %q", s), err)
		}
		addresses = append(addresses, addr)
	}

	token := &core.EntitlementToken{
		ID:               stringClaim(parsed, core.ClaimTokenID),
		Issuer:           parsed.Issuer(),
		Audience:         audience,
		NotBefore:        parsed.NotBefore().UTC(),
		NotAfter:         parsed.Expiration().UTC(),
		IssuedAt:         parsed.IssuedAt().UTC(),
		Applications:     applications,
		IPAddresses:      addresses,
		VirtualMachineID: stringClaim(parsed, core.ClaimVirtualMachineID),
	}
	return token, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringsClaim(tok jwt.Token, name string) ([]string, error) {
	v, ok := tok.Get(name)
	if !ok {
		return nil, nil
	}
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case string:
		return []string{vv}, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("claim %q contains a non-string entry", name)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("claim %q has unexpected type %T", name, v)
	}
}
