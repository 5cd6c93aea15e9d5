// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"errors"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/wire"
)

var (
	// bigOne is 1 represented as a big.Int.  It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value an INT block can
	// have for the main network.  It is the value 2^236 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 236), bigOne)

	// simNetPowLimit is the highest proof of work value an INT block can
	// have for the simulation test network.  It is the value 2^255 - 1.
	simNetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

// ErrDuplicateNet describes an error where the parameters for an INT network
// could not be set due to the network already being a standard network or
// previously-registered via Register.
var ErrDuplicateNet = errors.New("duplicate INT network")

// Checkpoint identifies a known good point in the block chain.  Using
// checkpoints allows clients to reject any alternate history below the
// checkpoint height outright, bounding how far back a hostile peer can
// rewrite history.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// Params defines an INT network by its parameters.  These parameters may be
// used by INT applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.IntNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// GenesisHeader defines the first block header of the chain.
	GenesisHeader *wire.BlockHeader

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// TargetTimePerBlock defines the desired amount of time to generate
	// each block.
	TargetTimePerBlock time.Duration

	// Checkpoints ordered from oldest to newest.
	Checkpoints []Checkpoint

	// Bech32HRPSegwit defines the human-readable part of bech32 encoded
	// addresses for the network.
	Bech32HRP string

	// URIScheme is the payment URI scheme for the network.
	URIScheme string

	// HDCoinType defines the BIP44 coin type used in the hierarchical
	// deterministic derivation path.
	HDCoinType uint32

	// RelayNonStdTxs defines whether the network should relay non-standard
	// transactions.
	RelayNonStdTxs bool
}

// MainNetParams defines the network parameters for the main INT network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         wire.MainNet,
	DefaultPort: "2210",

	// Chain parameters
	GenesisHeader:      &genesisBlockHeader,
	GenesisHash:        &genesisHash,
	PowLimit:           mainPowLimit,
	PowLimitBits:       0x1e0ffff0,
	TargetTimePerBlock: time.Minute * 5,

	// Checkpoints ordered from oldest to newest.
	Checkpoints: []Checkpoint{
		{10000, newHashFromStr("000000000a2b3f19561c1fc2f40ae52c7f9c9de6a3ea9c08e6d02a5c5d3e0f11")},
		{25000, newHashFromStr("00000000043d7b9e1f9b7a7e1d24b9f5c8e5b23adf0d9c40fa8a2f4f4b6c8821")},
		{50000, newHashFromStr("000000000160adf1c9e2a7d44af2ef4ea3c4e7d153c52ac8cb907b5b4e59c962")},
	},

	// Address and amount encoding parameters.
	Bech32HRP:  "int",
	URIScheme:  "intcoin",
	HDCoinType: 2210,

	RelayNonStdTxs: false,
}

// TestNetParams defines the network parameters for the test INT network.
var TestNetParams = Params{
	Name:        "testnet",
	Net:         wire.TestNet,
	DefaultPort: "12210",

	// Chain parameters
	GenesisHeader:      &testNetGenesisBlockHeader,
	GenesisHash:        &testNetGenesisHash,
	PowLimit:           mainPowLimit,
	PowLimitBits:       0x1e0ffff0,
	TargetTimePerBlock: time.Minute * 5,

	Checkpoints: nil,

	Bech32HRP:  "tint",
	URIScheme:  "intcoin",
	HDCoinType: 1,

	RelayNonStdTxs: true,
}

// SimNetParams defines the network parameters for the simulation test INT
// network.  This network is similar to the normal test network except it is
// intended for private use within a group of individuals doing simulation
// testing.  The functionality is intended to differ in that the only nodes
// which are specifically specified are used to create the network rather than
// following normal discovery rules.  This is important as otherwise it would
// just turn into another public testnet.
var SimNetParams = Params{
	Name:        "simnet",
	Net:         wire.SimNet,
	DefaultPort: "18555",

	// Chain parameters
	GenesisHeader:      &simNetGenesisBlockHeader,
	GenesisHash:        &simNetGenesisHash,
	PowLimit:           simNetPowLimit,
	PowLimitBits:       0x207fffff,
	TargetTimePerBlock: time.Minute * 5,

	Checkpoints: nil,

	Bech32HRP:  "sint",
	URIScheme:  "intcoin",
	HDCoinType: 115,

	RelayNonStdTxs: true,
}

// registeredNets keeps track of registered networks so multiple networks
// can't be registered for the same magic.
var registeredNets = map[wire.IntNet]struct{}{
	MainNetParams.Net: {},
	TestNetParams.Net: {},
	SimNetParams.Net:  {},
}

// Register registers the network parameters for an INT network.  This may
// error with ErrDuplicateNet if the network is already registered (either due
// to a previous Register call, or the network being one of the default
// networks).
//
// Network parameters should be registered into this package by a main package
// as early as possible.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	registeredNets[params.Net] = struct{}{}
	return nil
}

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash.  It only differs from the one available in chainhash in
// that it panics on an error since it will only (and must only) be called
// with hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return hash
}
