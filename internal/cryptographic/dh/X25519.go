package dh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// Generate a new X25519 key pair
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	_, err = rand.Read(priv[:])
	if err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// PublicFromPrivate recomputes the public half of a key pair.
func PublicFromPrivate(priv [32]byte) (pub [32]byte) {
	curve25519.ScalarBaseMult(&pub, &priv)
	return pub
}

// MatchesPrivate reports whether pub is the public half of priv.
func MatchesPrivate(pub, priv [32]byte) bool {
	derived := PublicFromPrivate(priv)
	return derived == pub
}

// Fingerprint is a short, log-safe identifier for a public key.
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

var lowOrderScalar = [32]byte{1}

// IsLowOrder reports whether pub is a small-order point (or an encoding of
// one). Such keys make the shared secret independent of the private key.
func IsLowOrder(pub []byte) bool {
	if len(pub) != curve25519.PointSize {
		return false
	}
	_, err := curve25519.X25519(lowOrderScalar[:], pub)
	return err != nil
}
