// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spv

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/wire"
)

// SyncState identifies the current phase of a sync session.
type SyncState int

const (
	// StateIdle indicates the manager is not running.
	StateIdle SyncState = iota

	// StateConnecting indicates the manager is running but has no sync
	// peer yet.
	StateConnecting

	// StateAwaitingHeaders indicates a getheaders request is in flight.
	StateAwaitingHeaders

	// StateAwaitingFilteredBlocks indicates header sync has caught up and
	// filtered blocks for the new range have been requested.
	StateAwaitingFilteredBlocks

	// StateSynced indicates the session has processed all requested
	// headers and filtered blocks.
	StateSynced

	// StateStopping indicates Stop has been called and the event loop is
	// draining.
	StateStopping
)

// syncStateStrings is a map of sync states back to their constant names for
// pretty printing.
var syncStateStrings = map[SyncState]string{
	StateIdle:                   "StateIdle",
	StateConnecting:             "StateConnecting",
	StateAwaitingHeaders:        "StateAwaitingHeaders",
	StateAwaitingFilteredBlocks: "StateAwaitingFilteredBlocks",
	StateSynced:                 "StateSynced",
	StateStopping:               "StateStopping",
}

// String returns the SyncState in human-readable form.
func (s SyncState) String() string {
	if str, ok := syncStateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown SyncState (%d)", int(s))
}

// Event is implemented by all notifications delivered on the manager's event
// channel.  The set of implementations is closed.
type Event interface {
	isSyncEvent()
}

// HeaderAccepted is delivered when a header has been accepted into the best
// chain.
type HeaderAccepted struct {
	Hash   chainhash.Hash
	Height int32
}

// ChainReorg is delivered when the best chain switched to a branch with more
// cumulative work.  Downstream consumers must roll back state derived from
// the detached headers before applying the attached ones.
type ChainReorg struct {
	OldHeight      int32
	NewHeight      int32
	NewHash        chainhash.Hash
	DetachedHashes []chainhash.Hash
	AttachedHashes []chainhash.Hash
}

// TxMatched is delivered when a transaction matching the loaded filter has
// been confirmed by a verified merkle proof in an accepted block.
type TxMatched struct {
	Tx          *wire.MsgTx
	TxHash      chainhash.Hash
	BlockHash   chainhash.Hash
	BlockHeight int32
}

// SyncProgress is delivered periodically while filtered blocks are being
// processed.
type SyncProgress struct {
	Height       int32
	TargetHeight int32
}

// SyncCompleted is delivered when the session has processed every requested
// header and filtered block and the chain is believed current.
type SyncCompleted struct {
	Hash   chainhash.Hash
	Height int32
}

func (HeaderAccepted) isSyncEvent() {}
func (ChainReorg) isSyncEvent()     {}
func (TxMatched) isSyncEvent()      {}
func (SyncProgress) isSyncEvent()   {}
func (SyncCompleted) isSyncEvent()  {}

// Progress is a point-in-time snapshot of the sync session.
type Progress struct {
	State        SyncState
	BestHash     chainhash.Hash
	BestHeight   int32
	TargetHeight int32
	PeerCount    int
}
