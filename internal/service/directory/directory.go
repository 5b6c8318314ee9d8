// Package directory maps identities to their current public key.
//
// The directory is a non-durable cache: clients re-register on every session
// start and a registration always replaces the previous record.
package directory

import (
	"context"
	"errors"
	"fmt"

	"privly_chat/internal/cryptographic/box"
	"privly_chat/internal/cryptographic/dh"
	"privly_chat/internal/model"
	"privly_chat/internal/utils/log"

	"go.uber.org/zap"
)

var (
	ErrInvalidKey      = errors.New("directory: invalid public key")
	ErrInvalidIdentity = errors.New("directory: invalid identity")
	ErrNotFound        = errors.New("directory: identity not found")
)

// Store persists key records. Get returns (nil, nil) when no record exists.
// Put must replace any previous record for the identity atomically.
type Store interface {
	Put(ctx context.Context, rec *model.KeyRecord) error
	Get(ctx context.Context, identity string) (*model.KeyRecord, error)
}

type Directory struct {
	store Store
}

func New(store Store) *Directory {
	return &Directory{store: store}
}

// Register validates publicKey and stores it as the key of identity.
func (d *Directory) Register(ctx context.Context, identity string, publicKey []byte) error {
	if err := model.ValidateIdentity(identity); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	if err := box.ValidatePublicKey(publicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	rec := &model.KeyRecord{
		Identity:  identity,
		PublicKey: append([]byte(nil), publicKey...),
	}
	if err := d.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("directory: store key of %s: %w", identity, err)
	}

	log.Info("public key registered",
		zap.String("identity", identity),
		zap.String("fingerprint", dh.Fingerprint(publicKey)))
	return nil
}

// Lookup returns the current public key of identity or ErrNotFound.
func (d *Directory) Lookup(ctx context.Context, identity string) ([]byte, error) {
	if err := model.ValidateIdentity(identity); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}

	rec, err := d.store.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("directory: load key of %s: %w", identity, err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), rec.PublicKey...), nil
}
