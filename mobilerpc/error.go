// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mobilerpc

import "fmt"

// ErrorCode identifies a kind of WalletError.
type ErrorCode int

const (
	// ErrWalletNotAvailable indicates the server has no wallet view to
	// serve the request from.
	ErrWalletNotAvailable ErrorCode = iota

	// ErrInvalidAddress indicates the request named an address that is
	// not valid for the network or not watched.
	ErrInvalidAddress

	// ErrInvalidRequest indicates a malformed request, such as a zero
	// transaction size or an undecodable raw transaction.
	ErrInvalidRequest

	// ErrNotConnected indicates the request needs peers and none are
	// connected.
	ErrNotConnected
)

// errorCodeStrings is a map of error codes back to their constant names for
// pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrWalletNotAvailable: "ErrWalletNotAvailable",
	ErrInvalidAddress:     "ErrInvalidAddress",
	ErrInvalidRequest:     "ErrInvalidRequest",
	ErrNotConnected:       "ErrNotConnected",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// WalletError identifies a wallet-level failure of an RPC operation.  These
// are surfaced synchronously to the caller and never retried automatically.
type WalletError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e WalletError) Error() string {
	return e.Description
}

// walletError creates a WalletError given a set of arguments.
func walletError(c ErrorCode, desc string) WalletError {
	return WalletError{ErrorCode: c, Description: desc}
}
