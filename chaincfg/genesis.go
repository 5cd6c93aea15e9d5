// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/wire"
)

// genesisCoinbaseTxHash is the hash of the single coinbase transaction in the
// genesis block.  Since the genesis block contains exactly one transaction,
// this doubles as the genesis merkle root.
var genesisCoinbaseTxHash = chainhash.Hash([chainhash.HashSize]byte{
	0x3b, 0xa3, 0xed, 0xfd, 0x7a, 0x7b, 0x12, 0xb2,
	0x7a, 0xc7, 0x2c, 0x3e, 0x67, 0x76, 0x8f, 0x61,
	0x7f, 0xc8, 0x1b, 0xc3, 0x88, 0x8a, 0x51, 0x32,
	0x3a, 0x9f, 0xb8, 0xaa, 0x4b, 0x1e, 0x5e, 0x4a,
})

// genesisBlockHeader is the block header of the genesis block for the main
// network.  The genesis block has no predecessor, so its PrevBlock is the
// zero hash.
var genesisBlockHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisCoinbaseTxHash,
	Timestamp:  time.Unix(0x66a1f280, 0), // 2024-07-25 06:40:00 +0000 UTC
	Bits:       0x1e0ffff0,
	Nonce:      0x000f2a4b,
}

// genesisHash is the hash of the genesis block header for the main network.
// It is derived from the serialized header rather than hard-coded so the two
// can never disagree.
var genesisHash = genesisBlockHeader.BlockHash()

// testNetGenesisBlockHeader is the block header of the genesis block for the
// test network.  It differs from the main network genesis in timestamp and
// nonce only.
var testNetGenesisBlockHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisCoinbaseTxHash,
	Timestamp:  time.Unix(0x66a1f2e0, 0),
	Bits:       0x1e0ffff0,
	Nonce:      0x00084f12,
}

// testNetGenesisHash is the hash of the genesis block header for the test
// network.
var testNetGenesisHash = testNetGenesisBlockHeader.BlockHash()

// simNetGenesisBlockHeader is the block header of the genesis block for the
// simulation test network.  Its difficulty bits encode the simnet proof of
// work limit so test harnesses can solve blocks in a handful of hash
// attempts.
var simNetGenesisBlockHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisCoinbaseTxHash,
	Timestamp:  time.Unix(0x66a1f340, 0),
	Bits:       0x207fffff,
	Nonce:      0,
}

// simNetGenesisHash is the hash of the genesis block header for the
// simulation test network.
var simNetGenesisHash = simNetGenesisBlockHeader.BlockHash()
