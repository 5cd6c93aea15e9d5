// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import "errors"

var (
	// ErrInvalidElementCount is returned when a filter is requested for
	// zero elements.
	ErrInvalidElementCount = errors.New("bloom filter requires at least one element")

	// ErrInvalidFPRate is returned when the requested false positive rate
	// is not in the half-open interval (0, 1].
	ErrInvalidFPRate = errors.New("false positive rate must be a probability greater than zero")
)
