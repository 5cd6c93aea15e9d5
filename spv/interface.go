// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spv

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/wire"
)

// SyncPeer represents a remote peer the sync manager can drive.  Transports
// implement it over whatever connection they maintain; the manager only ever
// calls these methods from its event loop.
type SyncPeer interface {
	// ID returns the peer's unique id.
	ID() int32

	// Addr returns the peer's address in host:port form.
	Addr() string

	// LastBlock returns the height the peer advertised for its best
	// chain.
	LastBlock() int32

	// PushGetHeaders requests headers after the given block locator up
	// to the optional stop hash.  A zero stop hash means as many headers
	// as the peer will send.
	PushGetHeaders(locator []*chainhash.Hash, stopHash *chainhash.Hash) error

	// PushFilterLoad installs the given bloom filter on the peer so
	// subsequent filtered block requests are matched against it.
	PushFilterLoad(filter *wire.MsgFilterLoad) error

	// PushGetData requests the inventory in the given message, which for
	// this client is filtered blocks.
	PushGetData(inv *wire.MsgGetData) error

	// PushTx relays the given transaction to the peer.
	PushTx(tx *wire.MsgTx) error

	// Disconnect tears down the connection.  The transport must deliver
	// a DonePeer call to the manager afterwards.
	Disconnect()
}
