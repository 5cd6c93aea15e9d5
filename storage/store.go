// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage defines the persistence interface used by the SPV client
// along with a LevelDB-backed implementation for devices and a pure
// in-memory implementation for tests.
package storage

import (
	"errors"
)

var (
	// ErrKeyNotFound is returned when a requested key does not exist in
	// the store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorruption is returned when the underlying store reports data
	// that fails its integrity checks.  Callers should treat the store
	// contents as untrustworthy and resynchronize from the network.
	ErrCorruption = errors.New("store corruption detected")

	// ErrClosed is returned when an operation is attempted on a store
	// that has already been closed.
	ErrClosed = errors.New("store is closed")
)

// Store provides a minimal ordered key/value persistence abstraction.
// Implementations must be safe for concurrent access.
type Store interface {
	// Get returns the value for the given key.  ErrKeyNotFound is
	// returned when the key does not exist.
	Get(key []byte) ([]byte, error)

	// Put stores the value for the given key, overwriting any existing
	// value.
	Put(key, value []byte) error

	// Delete removes the given key.  Deleting a key that does not exist
	// is not an error.
	Delete(key []byte) error

	// Has returns whether the given key exists.
	Has(key []byte) (bool, error)

	// ForEach invokes fn for every key that begins with prefix, in
	// ascending key order.  Iteration stops on the first error returned
	// by fn, which is propagated to the caller.
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	// Close releases any resources held by the store.
	Close() error
}
