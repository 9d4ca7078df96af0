package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultVerifierLength is the verifier length used by the login flow.
	DefaultVerifierLength = 64

	// MethodS256 is the only challenge method this package produces.
	MethodS256 = "S256"

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// bytes at or above acceptBelow are discarded so each symbol is equally likely
	acceptBelow = 256 - (256 % len(alphabet))
)

// ErrInvalidLength is returned when a verifier of less than one character is
// requested.
var ErrInvalidLength = errors.New("pkce: verifier length must be positive")

var randReader io.Reader = rand.Reader

// Pair is a code verifier together with the challenge derived from it.
type Pair struct {
	Verifier  string `json:"code_verifier"`
	Challenge string `json:"code_challenge"`
	Method    string `json:"code_challenge_method"`
}

// NewPair generates a verifier of the given length and derives its S256
// challenge.
func NewPair(length int) (Pair, error) {
	v, err := GenerateVerifier(length)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Verifier:  v,
		Challenge: DeriveChallenge(v),
		Method:    MethodS256,
	}, nil
}

// GenerateVerifier returns length characters drawn uniformly from [A-Za-z0-9]
// using crypto/rand. Random bytes that would bias the mapping onto the 62
// symbol alphabet are rejected rather than folded with a modulo.
func GenerateVerifier(length int) (string, error) {
	if length < 1 {
		return "", ErrInvalidLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/8+8)
	for len(out) < length {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("pkce: reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= acceptBelow {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// DeriveChallenge returns BASE64URL(SHA256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	bs := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(bs[:])
}

// VerifyChallenge reports whether challenge was derived from verifier.
func VerifyChallenge(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	computed := DeriveChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
