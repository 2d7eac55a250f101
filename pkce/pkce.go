// Package pkce generates Proof Key for Code Exchange verifier/challenge
// pairs (RFC 7636) for the authorization code flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// verifierLength is the number of random bytes drawn for the verifier
// before encoding (32 bytes = 256 bits).
const verifierLength = 32

// Session holds one verifier/challenge pair. It lives in memory for the
// duration of a single authorization attempt and is never persisted.
type Session struct {
	// Verifier is the cryptographically random secret sent only at
	// code exchange. Never log this value.
	Verifier string

	// Challenge is BASE64URL(SHA256(Verifier)), unpadded. Sent with the
	// authorization request.
	Challenge string

	CreatedAt time.Time
}

// Generate produces a new verifier and its derived challenge. The only
// failure mode is entropy-source exhaustion, which is an environment
// fault rather than a user-facing condition.
func Generate() (*Session, error) {
	buf := make([]byte, verifierLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("[pkce.Generate] failed to read entropy source: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return &Session{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		CreatedAt: time.Now(),
	}, nil
}

// Challenge derives the S256 code challenge for a verifier. The challenge
// is always computed from the verifier, never generated independently.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
