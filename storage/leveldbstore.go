// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is a Store implementation backed by a LevelDB database on
// disk.  It is the default store used on devices.
type LevelDBStore struct {
	mtx    sync.RWMutex
	db     *leveldb.DB
	closed bool
}

// Enforce LevelDBStore implements the Store interface.
var _ Store = (*LevelDBStore)(nil)

// convertErr maps LevelDB errors to the errors exported by this package.
func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case err == leveldb.ErrNotFound:
		return ErrKeyNotFound
	case ldberrors.IsCorrupted(err):
		return ErrCorruption
	}
	return err
}

// OpenLevelDBStore opens, and creates if needed, a LevelDB database at the
// given path and returns a store backed by it.  A corrupted database is
// reported as ErrCorruption rather than silently recovered so that the
// caller can decide to resynchronize.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	opts := &opt.Options{
		Strict: opt.DefaultStrict,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, convertErr(err)
	}
	return &LevelDBStore{db: db}, nil
}

// Get returns the value for the given key.
//
// This is part of the Store interface.
func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	value, err := s.db.Get(key, nil)
	if err != nil {
		return nil, convertErr(err)
	}
	return value, nil
}

// Put stores the value for the given key.
//
// This is part of the Store interface.
func (s *LevelDBStore) Put(key, value []byte) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return convertErr(s.db.Put(key, value, nil))
}

// Delete removes the given key.
//
// This is part of the Store interface.
func (s *LevelDBStore) Delete(key []byte) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return convertErr(s.db.Delete(key, nil))
}

// Has returns whether the given key exists.
//
// This is part of the Store interface.
func (s *LevelDBStore) Has(key []byte) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	ok, err := s.db.Has(key, nil)
	return ok, convertErr(err)
}

// ForEach invokes fn for every key that begins with prefix, in ascending
// key order.
//
// This is part of the Store interface.
func (s *LevelDBStore) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return ErrClosed
	}
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return convertErr(iter.Error())
}

// Close closes the underlying database.
//
// This is part of the Store interface.
func (s *LevelDBStore) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return convertErr(s.db.Close())
}
