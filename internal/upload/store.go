// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const sessionPrefix = "sess:"

// maxTxnRetries bounds optimistic-concurrency retries on conflicting
// read-modify-write transactions. Browsers upload a handful of chunks in
// parallel, so conflicts on one session stay shallow; the bound only guards
// against livelock.
const maxTxnRetries = 25

// Store persists upload sessions in Badger so in-flight uploads survive a
// daemon restart. Keys are "sess:<key>" with JSON values.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) the session database at path.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenStoreInMemory opens an ephemeral store. Tests only.
func OpenStoreInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Put overwrites the session record for sess.Key.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionPrefix+sess.Key), buf)
	})
}

// Get loads a session by key, returning ErrUnknownSession when absent.
func (s *Store) Get(ctx context.Context, key string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	return &out, nil
}

// Update applies fn to the stored session inside a transaction and persists
// the result. Conflicting concurrent updates retry; fn must therefore be
// side-effect free. Returns the committed session.
func (s *Store) Update(ctx context.Context, key string, fn func(*Session) error) (*Session, error) {
	var out Session
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(sessionPrefix + key))
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out)
			}); err != nil {
				return err
			}
			if err := fn(&out); err != nil {
				return err
			}
			out.UpdatedAt = time.Now().UTC()
			buf, err := json.Marshal(&out)
			if err != nil {
				return err
			}
			return txn.Set([]byte(sessionPrefix+key), buf)
		})
		switch {
		case err == nil:
			return &out, nil
		case errors.Is(err, badger.ErrConflict) && attempt < maxTxnRetries:
			continue
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil, ErrUnknownSession
		default:
			return nil, err
		}
	}
}

// Delete removes a session record. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + key))
	})
}

// Each invokes fn for every stored session. Used by the sweeper.
func (s *Store) Each(ctx context.Context, fn func(*Session) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var sess Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			}); err != nil {
				return err
			}
			if err := fn(&sess); err != nil {
				return err
			}
		}
		return nil
	})
}
