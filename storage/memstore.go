// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"sort"
	"sync"
)

// MemStore is an in-memory Store implementation.  It is primarily intended
// for tests and ephemeral sessions that do not need persistence across
// restarts.
type MemStore struct {
	mtx    sync.RWMutex
	values map[string][]byte
	closed bool
}

// Enforce MemStore implements the Store interface.
var _ Store = (*MemStore)(nil)

// NewMemStore returns a new empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		values: make(map[string][]byte),
	}
}

// Get returns the value for the given key.
//
// This is part of the Store interface.
func (s *MemStore) Get(key []byte) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	value, ok := s.values[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	ret := make([]byte, len(value))
	copy(ret, value)
	return ret, nil
}

// Put stores the value for the given key.
//
// This is part of the Store interface.
func (s *MemStore) Put(key, value []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return ErrClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.values[string(key)] = v
	return nil
}

// Delete removes the given key.
//
// This is part of the Store interface.
func (s *MemStore) Delete(key []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.values, string(key))
	return nil
}

// Has returns whether the given key exists.
//
// This is part of the Store interface.
func (s *MemStore) Has(key []byte) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.values[string(key)]
	return ok, nil
}

// ForEach invokes fn for every key that begins with prefix, in ascending
// key order.
//
// This is part of the Store interface.
func (s *MemStore) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	s.mtx.RLock()
	if s.closed {
		s.mtx.RUnlock()
		return ErrClosed
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2][]byte{[]byte(k), s.values[k]})
	}
	s.mtx.RUnlock()

	for _, pair := range pairs {
		if err := fn(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the store closed.  Further operations return ErrClosed.
//
// This is part of the Store interface.
func (s *MemStore) Close() error {
	s.mtx.Lock()
	s.closed = true
	s.values = nil
	s.mtx.Unlock()
	return nil
}
