// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/blockchain"
)

// TestBigToCompact ensures BigToCompact converts big integers to the
// expected compact representation.
func TestBigToCompact(t *testing.T) {
	tests := []struct {
		in  int64
		out uint32
	}{
		{0, 0},
		{-1, 25231360},
	}

	for x, test := range tests {
		n := big.NewInt(test.in)
		r := blockchain.BigToCompact(n)
		if r != test.out {
			t.Errorf("TestBigToCompact test #%d failed: got %d "+
				"want %d\n", x, r, test.out)
			return
		}
	}
}

// TestCompactToBig ensures CompactToBig converts numbers using the compact
// representation to the expected big integers.
func TestCompactToBig(t *testing.T) {
	tests := []struct {
		in  uint32
		out int64
	}{
		{10000000, 0},
	}

	for x, test := range tests {
		n := blockchain.CompactToBig(test.in)
		want := big.NewInt(test.out)
		if n.Cmp(want) != 0 {
			t.Errorf("TestCompactToBig test #%d failed: got %d "+
				"want %d\n", x, n.Int64(), want.Int64())
			return
		}
	}
}

// TestCompactRoundTrip ensures compact values survive expansion and
// recompaction.
func TestCompactRoundTrip(t *testing.T) {
	// Typical difficulty bits, including the mainnet and simnet limits.
	tests := []uint32{
		0x1d00ffff,
		0x1e0ffff0,
		0x207fffff,
		0x1b0404cb,
	}

	for _, bits := range tests {
		expanded := blockchain.CompactToBig(bits)
		if got := blockchain.BigToCompact(expanded); got != bits {
			t.Errorf("round trip failed: got %08x want %08x", got,
				bits)
		}
	}
}

// TestCalcWork ensures the work computed from difficulty bits matches the
// expected values.
func TestCalcWork(t *testing.T) {
	tests := []struct {
		in  uint32
		out string
	}{
		// Zero and negative targets carry no work.
		{0, "0"},
		{0x01810000, "0"},

		// 2^256 / (0xffff * 2^208 + 1).
		{0x1d00ffff, "4295032833"},
	}

	for x, test := range tests {
		work := blockchain.CalcWork(test.in)
		want, ok := new(big.Int).SetString(test.out, 10)
		if !ok {
			t.Fatalf("bad test data %q", test.out)
		}
		if work.Cmp(want) != 0 {
			t.Errorf("TestCalcWork test #%d failed: got %v want %v",
				x, work, want)
			return
		}
	}
}

// TestHashToBig ensures hash interpretation reverses the byte order so the
// numeric comparison against a target behaves correctly.
func TestHashToBig(t *testing.T) {
	var hash chainhash.Hash
	hash[31] = 0x01

	// The final hash byte is the most significant.
	want := new(big.Int).Lsh(big.NewInt(1), 248)
	if got := blockchain.HashToBig(&hash); got.Cmp(want) != 0 {
		t.Fatalf("HashToBig: got %v, want %v", got, want)
	}

	var zero chainhash.Hash
	if blockchain.HashToBig(&zero).Sign() != 0 {
		t.Fatal("HashToBig: zero hash is not zero")
	}
}
