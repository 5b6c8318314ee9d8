// Package local is the client-side state file: the identity's key pair, its
// conversation logs and its unread counters, all in one bbolt database.
//
// Layout, under a top-level bucket named after the owning identity:
//
//	keypair/        "current" -> JSON key pair
//	conversations/  <conversation key>/ <8-byte sequence> -> JSON entry
//	unread/         <peer> -> 8-byte big-endian count
package local

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"privly_chat/internal/model"

	bolt "go.etcd.io/bbolt"
)

const (
	keyPairBucket      = "keypair"
	conversationBucket = "conversations"
	unreadBucket       = "unread"

	currentKeyPair = "current"
)

type Store struct {
	db    *bolt.DB
	owner []byte
}

type storedKeyPair struct {
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

// Open opens (or creates) the state file at path for owner.
func Open(path, owner string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("local: open %s: %w", path, err)
	}

	s := &Store{db: db, owner: []byte(owner)}
	err = db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(s.owner)
		if err != nil {
			return err
		}
		for _, name := range []string{keyPairBucket, conversationBucket, unreadBucket} {
			if _, err := root.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("local: init buckets: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bucket(tx *bolt.Tx, name string) *bolt.Bucket {
	return tx.Bucket(s.owner).Bucket([]byte(name))
}

// KeyPair returns the stored key pair, or nil when none has been saved.
func (s *Store) KeyPair() (*model.KeyPair, error) {
	var kp *model.KeyPair
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := s.bucket(tx, keyPairBucket).Get([]byte(currentKeyPair))
		if raw == nil {
			return nil
		}

		var stored storedKeyPair
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		if len(stored.PublicKey) != 32 || len(stored.PrivateKey) != 32 {
			return fmt.Errorf("stored key pair has wrong length")
		}

		kp = &model.KeyPair{}
		copy(kp.PublicKey[:], stored.PublicKey)
		copy(kp.PrivateKey[:], stored.PrivateKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: load key pair: %w", err)
	}
	return kp, nil
}

func (s *Store) PutKeyPair(kp *model.KeyPair) error {
	raw, err := json.Marshal(&storedKeyPair{
		PublicKey:  kp.PublicKey[:],
		PrivateKey: kp.PrivateKey[:],
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.bucket(tx, keyPairBucket).Put([]byte(currentKeyPair), raw)
	})
}

func (s *Store) Append(key string, entry *model.ConversationEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := s.bucket(tx, conversationBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		return bkt.Put(k[:], raw)
	})
}

// Load returns the entries of key in append order.
func (s *Store) Load(key string) ([]*model.ConversationEntry, error) {
	entries := []*model.ConversationEntry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := s.bucket(tx, conversationBucket).Bucket([]byte(key))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(_, v []byte) error {
			var e model.ConversationEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, &e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("local: load conversation: %w", err)
	}
	return entries, nil
}

func (s *Store) IncrementUnread(peer string) (int, error) {
	var n uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := s.bucket(tx, unreadBucket)
		if raw := bkt.Get([]byte(peer)); len(raw) == 8 {
			n = binary.BigEndian.Uint64(raw)
		}
		n++
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], n)
		return bkt.Put([]byte(peer), v[:])
	})
	return int(n), err
}

func (s *Store) ResetUnread(peer string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.bucket(tx, unreadBucket).Delete([]byte(peer))
	})
}

func (s *Store) Unread() (map[string]int, error) {
	counts := make(map[string]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		return s.bucket(tx, unreadBucket).ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				counts[string(k)] = int(binary.BigEndian.Uint64(v))
			}
			return nil
		})
	})
	return counts, err
}
