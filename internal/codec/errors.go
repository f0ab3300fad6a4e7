package codec

import "fmt"

// Kind classifies codec failures. Callers report these differently from
// business-rule denials: none of them leave any claim trustworthy, so
// verification stops at the first codec failure.
type Kind int

const (
	// KindMalformed means the input is not a structurally valid token.
	KindMalformed Kind = iota + 1

	// KindSignatureInvalid means the signature did not verify.
	KindSignatureInvalid

	// KindDecryptionFailed means the payload is encrypted and could not be
	// decrypted with the configured certificate.
	KindDecryptionFailed

	// KindInvalidClaims means the token authenticated but its claims are
	// unusable (wrong audience/issuer, missing expiry, bad address claim).
	KindInvalidClaims

	// KindMissingKeyMaterial means a certificate lacks the key material the
	// operation needs (e.g. signing without a private key).
	KindMissingKeyMaterial
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindSignatureInvalid:
		return "signature invalid"
	case KindDecryptionFailed:
		return "decryption failed"
	case KindInvalidClaims:
		return "invalid claims"
	case KindMissingKeyMaterial:
		return "missing key material"
	default:
		return "unknown"
	}
}

// CodecError is returned for any token encode/decode failure.
type CodecError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func codecError(kind Kind, message string, err error) *CodecError {
	return &CodecError{Kind: kind, Message: message, Err: err}
}
