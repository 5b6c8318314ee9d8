// Package box implements public-key authenticated encryption between two
// identities using NaCl crypto_box (X25519, XSalsa20, Poly1305).
//
// Both sides derive the same shared key: the sender from (recipient public,
// sender private) and the recipient from (sender public, recipient private).
// Every call to Encrypt draws a fresh 24-byte nonce from crypto/rand.
package box

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"privly_chat/internal/cryptographic/dh"
	"privly_chat/internal/model"

	"golang.org/x/crypto/nacl/box"
)

const (
	KeySize   = 32
	NonceSize = 24
	Overhead  = box.Overhead
)

var (
	ErrInvalidKey           = errors.New("box: invalid key")
	ErrAuthenticationFailed = errors.New("box: message authentication failed")
	ErrNonceSource          = errors.New("box: cannot read nonce")
)

// nonceSource is swapped in tests only.
var nonceSource io.Reader = rand.Reader

// GenerateKeyPair creates a long-lived key pair for one identity.
func GenerateKeyPair() (*model.KeyPair, error) {
	priv, pub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("box: generate key pair: %w", err)
	}
	return &model.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// ValidatePublicKey rejects keys of the wrong length, the all-zero key and
// the other small-order points.
func ValidatePublicKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	var zero [KeySize]byte
	if subtle.ConstantTimeCompare(key, zero[:]) == 1 {
		return fmt.Errorf("%w: all-zero key", ErrInvalidKey)
	}
	if dh.IsLowOrder(key) {
		return fmt.Errorf("%w: small-order key", ErrInvalidKey)
	}
	return nil
}

func toKey(key []byte) (*[KeySize]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	var k [KeySize]byte
	copy(k[:], key)
	return &k, nil
}

// Encrypt seals plaintext for the owner of recipientPublicKey, authenticated
// as the owner of senderPrivateKey.
func Encrypt(plaintext, recipientPublicKey, senderPrivateKey []byte) (ciphertext, nonce []byte, err error) {
	if err := ValidatePublicKey(recipientPublicKey); err != nil {
		return nil, nil, err
	}
	peer, _ := toKey(recipientPublicKey)
	priv, err := toKey(senderPrivateKey)
	if err != nil {
		return nil, nil, err
	}

	var n [NonceSize]byte
	if _, err := io.ReadFull(nonceSource, n[:]); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNonceSource, err)
	}

	ciphertext = box.Seal(nil, plaintext, &n, peer, priv)
	return ciphertext, n[:], nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any tampering, wrong key
// or wrong nonce yields ErrAuthenticationFailed and no plaintext.
func Decrypt(ciphertext, nonce, senderPublicKey, recipientPrivateKey []byte) ([]byte, error) {
	peer, err := toKey(senderPublicKey)
	if err != nil {
		return nil, err
	}
	priv, err := toKey(recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrAuthenticationFailed, len(nonce))
	}
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrAuthenticationFailed)
	}

	var n [NonceSize]byte
	copy(n[:], nonce)

	plain, ok := box.Open(nil, ciphertext, &n, peer, priv)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// SharedKey precomputes the symmetric key shared between the owner of
// ownPrivateKey and the owner of peerPublicKey. Either side gets the same
// value.
func SharedKey(peerPublicKey, ownPrivateKey []byte) (*[KeySize]byte, error) {
	peer, err := toKey(peerPublicKey)
	if err != nil {
		return nil, err
	}
	priv, err := toKey(ownPrivateKey)
	if err != nil {
		return nil, err
	}
	var shared [KeySize]byte
	box.Precompute(&shared, peer, priv)
	return &shared, nil
}

// Seal encrypts plaintext from sender to recipient and packages the result
// as an Envelope.
func Seal(sender, recipient string, plaintext []byte, recipientPublicKey []byte, keys *model.KeyPair) (*model.Envelope, error) {
	ct, nonce, err := Encrypt(plaintext, recipientPublicKey, keys.PrivateKey[:])
	if err != nil {
		return nil, err
	}
	return &model.Envelope{
		Sender:     sender,
		Recipient:  recipient,
		Ciphertext: ct,
		Nonce:      nonce,
	}, nil
}

// Open decrypts an Envelope addressed to the owner of keys.
func Open(env *model.Envelope, senderPublicKey []byte, keys *model.KeyPair) ([]byte, error) {
	return Decrypt(env.Ciphertext, env.Nonce, senderPublicKey, keys.PrivateKey[:])
}

// CheckKeyPair verifies that a loaded key pair is internally consistent.
func CheckKeyPair(keys *model.KeyPair) error {
	if !dh.MatchesPrivate(keys.PublicKey, keys.PrivateKey) {
		return fmt.Errorf("%w: public key does not match private key", ErrInvalidKey)
	}
	return nil
}
