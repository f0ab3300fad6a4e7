package core

import "time"

// TokenCodec turns entitlement tokens into opaque strings and back.
// Implementations authenticate (and optionally decrypt) on Decode; business
// rules such as the validity window are not the codec's concern.
type TokenCodec interface {
	// Encode serializes, signs and optionally encrypts the token.
	Encode(token EntitlementToken) (string, error)

	// Decode authenticates a presented token string and returns its claims.
	Decode(raw string) (*EntitlementToken, error)
}

// Clock supplies the current instant. Injected so verification and lease
// accounting are testable against a fixed time.
type Clock func() time.Time

// UTCClock returns the current UTC instant.
func UTCClock() time.Time {
	return time.Now().UTC()
}
