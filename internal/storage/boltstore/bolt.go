package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"ephemeral-paste/internal/storage"
)

var (
	pasteBucket  = []byte("pastes")
	expireBucket = []byte("expires")
)

// Store implements storage.Store backed by BoltDB.
//
// Bolt has no key expiry, so expired pastes stay on disk until DeleteExpired
// sweeps them through the expiry index.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pasteBucket); err != nil {
			return fmt.Errorf("create paste bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(expireBucket); err != nil {
			return fmt.Errorf("create expire bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Create persists a new paste and indexes its expiry in one transaction.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	paste.CreatedAt = paste.CreatedAt.UTC()
	if paste.ExpiresAt != nil {
		exp := paste.ExpiresAt.UTC()
		paste.ExpiresAt = &exp
	}

	data, err := json.Marshal(paste)
	if err != nil {
		return fmt.Errorf("marshal paste: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		pBucket, eBucket, err := buckets(tx)
		if err != nil {
			return err
		}
		if pBucket.Get([]byte(paste.ID)) != nil {
			return storage.ErrExists
		}
		if err := pBucket.Put([]byte(paste.ID), data); err != nil {
			return fmt.Errorf("save paste: %w", err)
		}
		if paste.HasExpiration() {
			if err := eBucket.Put(expireKey(*paste.ExpiresAt, paste.ID), []byte(paste.ID)); err != nil {
				return fmt.Errorf("index expiry: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pasteBucket)
		if bucket == nil {
			return errors.New("pastes bucket missing")
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return storage.ErrNotFound
		}
		var paste storage.Paste
		if err := json.Unmarshal(raw, &paste); err != nil {
			return fmt.Errorf("unmarshal paste: %w", err)
		}
		out = &paste
		return nil
	})

	return out, err
}

// IncrementViews records one view. Bolt serializes writable transactions, so
// the read-check-write below cannot interleave with another increment.
func (s *Store) IncrementViews(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var views int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pasteBucket)
		if bucket == nil {
			return errors.New("pastes bucket missing")
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return storage.ErrNotFound
		}
		var paste storage.Paste
		if err := json.Unmarshal(raw, &paste); err != nil {
			return fmt.Errorf("unmarshal paste: %w", err)
		}
		if paste.HasViewLimit() && paste.ViewsCount >= *paste.MaxViews {
			return storage.ErrViewLimitReached
		}
		paste.ViewsCount++
		data, err := json.Marshal(&paste)
		if err != nil {
			return fmt.Errorf("marshal paste: %w", err)
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return fmt.Errorf("save paste: %w", err)
		}
		views = paste.ViewsCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return views, nil
}

// DeleteExpired removes all pastes with expiry before or equal to the provided time.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		pBucket, eBucket, err := buckets(tx)
		if err != nil {
			return err
		}

		cursor := eBucket.Cursor()
		cutoff := toTimestamp(before)
		for key, val := cursor.First(); key != nil; key, val = cursor.Next() {
			if binary.BigEndian.Uint64(key[:8]) > cutoff {
				break
			}
			id := string(val)
			if err := pBucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete expired paste %s: %w", id, err)
			}
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("delete expiry index: %w", err)
			}
			removed++
		}
		return nil
	})

	return removed, err
}

// Ping verifies the database is open and its buckets exist.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		_, _, err := buckets(tx)
		return err
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buckets(tx *bolt.Tx) (*bolt.Bucket, *bolt.Bucket, error) {
	pBucket := tx.Bucket(pasteBucket)
	eBucket := tx.Bucket(expireBucket)
	if pBucket == nil || eBucket == nil {
		return nil, nil, errors.New("buckets not initialized")
	}
	return pBucket, eBucket, nil
}

func expireKey(t time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, toTimestamp(t))
	copy(key[8:], id)
	return key
}

func toTimestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UTC().UnixNano())
}
