// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom_test

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/blockchain"
	"github.com/INT-devs/mobile-wallets/bloom"
	"github.com/INT-devs/mobile-wallets/wire"
)

// makeTestTxns returns count unique minimal transactions.
func makeTestTxns(count int) []*wire.MsgTx {
	txns := make([]*wire.MsgTx, count)
	for i := range txns {
		tx := wire.NewMsgTx()
		prevHash := chainhash.DoubleHashH([]byte(fmt.Sprintf("prev %d", i)))
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, uint32(i)), nil))
		tx.AddTxOut(wire.NewTxOut(int64(1000*(i+1)), []byte{0x51, byte(i)}))
		txns[i] = tx
	}
	return txns
}

// calcMerkleRoot computes the merkle root over the passed leaf hashes the
// same way a full block would, duplicating the final entry of odd levels.
func calcMerkleRoot(leaves []*chainhash.Hash) chainhash.Hash {
	level := make([]*chainhash.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		var next []*chainhash.Hash
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, blockchain.HashMerkleBranches(left,
				right))
		}
		level = next
	}
	return *level[0]
}

// buildTestMerkleBlock assembles a merkle block for the passed transactions
// with a filter matching exactly the transactions at matchIndices.
func buildTestMerkleBlock(t *testing.T, txns []*wire.MsgTx,
	matchIndices ...int) (*wire.MsgMerkleBlock, []*chainhash.Hash) {

	t.Helper()

	f, err := bloom.NewFilter(10, 0, 0.000001, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}
	want := make([]*chainhash.Hash, 0, len(matchIndices))
	for _, idx := range matchIndices {
		hash := txns[idx].TxHash()
		f.AddHash(&hash)
		want = append(want, &hash)
	}

	leaves := make([]*chainhash.Hash, len(txns))
	for i, tx := range txns {
		hash := tx.TxHash()
		leaves[i] = &hash
	}
	header := &wire.BlockHeader{
		Version:    1,
		MerkleRoot: calcMerkleRoot(leaves),
		Bits:       0x207fffff,
	}

	msg, matched := bloom.NewMerkleBlock(header, txns, f)
	if len(matched) != len(matchIndices) {
		t.Fatalf("NewMerkleBlock: matched %d transactions, want %d",
			len(matched), len(matchIndices))
	}
	return msg, want
}

// TestMerkleBlockRoundTrip builds merkle blocks for various match patterns
// and verifies the proofs extract exactly the matched transactions.
func TestMerkleBlockRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		numTx   int
		matches []int
	}{
		{"single tx matched", 1, []int{0}},
		{"first of five", 5, []int{0}},
		{"middle of five", 5, []int{2}},
		{"last of five", 5, []int{4}},
		{"several of five", 5, []int{1, 3, 4}},
		{"none of seven", 7, nil},
		{"all of four", 4, []int{0, 1, 2, 3}},
		{"one of thirty three", 33, []int{17}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			txns := makeTestTxns(test.numTx)
			msg, want := buildTestMerkleBlock(t, txns,
				test.matches...)

			matched, err := blockchain.VerifyMerkleBlock(msg)
			if err != nil {
				t.Fatalf("VerifyMerkleBlock: unexpected error "+
					"%v", err)
			}
			if len(matched) != len(want) {
				t.Fatalf("VerifyMerkleBlock: got %d matches, "+
					"want %d", len(matched), len(want))
			}
			for i := range want {
				if *matched[i] != *want[i] {
					t.Errorf("match #%d: got %v, want %v",
						i, matched[i], want[i])
				}
			}
		})
	}
}

// TestMerkleBlockTampering tests that corrupted proofs are rejected.
func TestMerkleBlockTampering(t *testing.T) {
	txns := makeTestTxns(5)
	msg, _ := buildTestMerkleBlock(t, txns, 2)

	// Corrupting any proof hash breaks the root.
	for i := range msg.Hashes {
		corrupted := *msg
		corrupted.Hashes = make([]*chainhash.Hash, len(msg.Hashes))
		copy(corrupted.Hashes, msg.Hashes)
		badHash := *corrupted.Hashes[i]
		badHash[0] ^= 0xff
		corrupted.Hashes[i] = &badHash

		if _, err := blockchain.VerifyMerkleBlock(&corrupted); err == nil {
			t.Errorf("VerifyMerkleBlock: no error with hash #%d "+
				"corrupted", i)
		}
	}

	// Corrupting the claimed transaction count is rejected.
	corrupted := *msg
	corrupted.Transactions++
	if _, err := blockchain.VerifyMerkleBlock(&corrupted); err == nil {
		t.Error("VerifyMerkleBlock: no error with wrong tx count")
	}

	// An empty proof is rejected.
	empty := wire.NewMsgMerkleBlock(&msg.Header)
	if _, err := blockchain.VerifyMerkleBlock(empty); err == nil {
		t.Error("VerifyMerkleBlock: no error with empty proof")
	}
}
