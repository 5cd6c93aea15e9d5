// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package intutil provides INT-specific convenience functions and types:
// monetary amounts in the base unit (ints), bech32 address validation, and
// payment URI handling.
package intutil
