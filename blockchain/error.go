// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// CorruptionError identifies an error that indicates persisted chain data
// failed its integrity checks on load.  It is fatal for the store contents
// and the caller should discard them and resynchronize from the network.
type CorruptionError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e CorruptionError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e CorruptionError) Unwrap() error {
	return e.Err
}

// corruptionError creates a CorruptionError given a set of arguments.
func corruptionError(desc string, err error) CorruptionError {
	return CorruptionError{Description: desc, Err: err}
}

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateBlock indicates a header with the same hash already
	// exists in the chain.
	ErrDuplicateBlock ErrorCode = iota

	// ErrMissingParent indicates that the header references a previous
	// block that is not known, making the header an orphan.
	ErrMissingParent

	// ErrInvalidTime indicates the time in the passed header has a
	// precision that is more than one second.  The chain consensus rules
	// require timestamps to have a maximum precision of one second.
	ErrInvalidTime

	// ErrTimeTooOld indicates the header timestamp is not strictly after
	// the timestamp of its parent.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the time is too far in the future as
	// compared to the current time.
	ErrTimeTooNew

	// ErrUnexpectedDifficulty indicates specified bits do not align with
	// the expected value either because it doesn't match the calculated
	// value or it is out of the valid range.
	ErrUnexpectedDifficulty

	// ErrHighHash indicates the header does not hash to a value which is
	// lower than the required target difficulty.
	ErrHighHash

	// ErrBadMerkleRoot indicates the calculated merkle root does not
	// match the expected value.
	ErrBadMerkleRoot

	// ErrBadMerkleProof indicates a partial merkle tree could not be
	// parsed into a consistent tree, such as leftover hashes or flag bits
	// remaining after the traversal, or an identical left and right
	// branch where the tree shape forbids one.
	ErrBadMerkleProof

	// ErrBadCheckpoint indicates the header at a checkpoint height does
	// not match the hard-coded checkpoint hash.
	ErrBadCheckpoint

	// ErrForkTooOld indicates a header is attempting to fork the chain
	// at or before the most recent checkpoint.
	ErrForkTooOld

	// ErrTooManyTransactions indicates a merkle block claims more
	// transactions than a block can hold.
	ErrTooManyTransactions

	// numErrorCodes is the maximum error code number used in tests.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:       "ErrDuplicateBlock",
	ErrMissingParent:        "ErrMissingParent",
	ErrInvalidTime:          "ErrInvalidTime",
	ErrTimeTooOld:           "ErrTimeTooOld",
	ErrTimeTooNew:           "ErrTimeTooNew",
	ErrUnexpectedDifficulty: "ErrUnexpectedDifficulty",
	ErrHighHash:             "ErrHighHash",
	ErrBadMerkleRoot:        "ErrBadMerkleRoot",
	ErrBadMerkleProof:       "ErrBadMerkleProof",
	ErrBadCheckpoint:        "ErrBadCheckpoint",
	ErrForkTooOld:           "ErrForkTooOld",
	ErrTooManyTransactions:  "ErrTooManyTransactions",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a header or merkle proof failed due to one of the many
// validation rules.  The caller can use type assertions to determine if a
// failure was specifically due to a rule violation and access the ErrorCode
// field to ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}
