// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/wire"
)

// maxTxPerBlock is the maximum number of transactions that could possibly
// fit into a block given the minimum possible transaction size and the
// maximum allowed block payload.
const maxTxPerBlock = 50000

// HashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation.  This is a helper
// function used to aid in the generation of a merkle tree.
func HashMerkleBranches(left, right *chainhash.Hash) *chainhash.Hash {
	// Concatenate the left and right nodes.
	var hash [chainhash.HashSize * 2]byte
	copy(hash[:chainhash.HashSize], left[:])
	copy(hash[chainhash.HashSize:], right[:])

	newHash := chainhash.DoubleHashH(hash[:])
	return &newHash
}

// merkleProof houses the state needed while parsing a partial merkle tree
// from a merkle block using a recursive depth-first traversal that mirrors
// the way the tree was built.
type merkleProof struct {
	numTx    uint32
	hashes   []*chainhash.Hash
	flags    []byte
	hashUsed int
	bitsUsed int
	matched  []*chainhash.Hash
	bad      bool
}

// calcTreeWidth calculates and returns the number of nodes (width) of a
// merkle tree at the given depth-first height.
func (m *merkleProof) calcTreeWidth(height uint32) uint32 {
	return (m.numTx + (1 << height) - 1) >> height
}

// nextBit consumes and returns the next flag bit from the proof.  The bad
// flag is set when the proof does not carry enough bits for the traversal.
func (m *merkleProof) nextBit() byte {
	if m.bitsUsed >= len(m.flags)*8 {
		m.bad = true
		return 0
	}
	bit := (m.flags[m.bitsUsed/8] >> (uint(m.bitsUsed) % 8)) & 0x01
	m.bitsUsed++
	return bit
}

// nextHash consumes and returns the next hash from the proof.  The bad flag
// is set when the proof does not carry enough hashes for the traversal.
func (m *merkleProof) nextHash() *chainhash.Hash {
	if m.hashUsed >= len(m.hashes) {
		m.bad = true
		return &chainhash.Hash{}
	}
	hash := m.hashes[m.hashUsed]
	m.hashUsed++
	return hash
}

// traverseAndExtract walks the partial merkle tree depth first, consuming
// flag bits and hashes as the original builder emitted them, and returns the
// hash of the sub-tree rooted at the given height and position.  Matched
// leaf hashes are collected in traversal order.
func (m *merkleProof) traverseAndExtract(height, pos uint32) *chainhash.Hash {
	isParent := m.nextBit()
	if height == 0 || isParent == 0 {
		// Leaf node or a pruned sub-tree.  The hash is taken directly
		// from the proof.
		hash := m.nextHash()
		if height == 0 && isParent == 1 {
			m.matched = append(m.matched, hash)
		}
		return hash
	}

	// Internal node on the path to a matched leaf.  Both children are
	// derived from the proof.
	left := m.traverseAndExtract(height-1, pos*2)
	if pos*2+1 < m.calcTreeWidth(height-1) {
		right := m.traverseAndExtract(height-1, pos*2+1)

		// Identical left and right branches allow the same set of
		// transactions to produce two distinct blocks, so reject the
		// proof outright.
		if left.IsEqual(right) {
			m.bad = true
		}
		return HashMerkleBranches(left, right)
	}
	return HashMerkleBranches(left, left)
}

// VerifyMerkleBlock parses the partial merkle tree carried by the passed
// merkle block, validates it against the merkle root committed to by the
// header, and returns the matched transaction hashes in the order they
// appear in the block.
//
// The proof is rejected when the claimed transaction count is zero or
// implausibly large, when the traversal runs out of hashes or flag bits,
// when hashes or non-padding flag bits are left over after the traversal,
// or when the derived root does not match the header merkle root.
func VerifyMerkleBlock(msg *wire.MsgMerkleBlock) ([]*chainhash.Hash, error) {
	if msg.Transactions == 0 {
		return nil, ruleError(ErrBadMerkleProof, "merkle block claims "+
			"zero transactions")
	}
	if msg.Transactions > maxTxPerBlock {
		str := fmt.Sprintf("merkle block claims %d transactions which "+
			"exceeds the maximum of %d", msg.Transactions,
			maxTxPerBlock)
		return nil, ruleError(ErrTooManyTransactions, str)
	}
	if uint32(len(msg.Hashes)) > msg.Transactions {
		str := fmt.Sprintf("merkle block carries %d hashes for %d "+
			"transactions", len(msg.Hashes), msg.Transactions)
		return nil, ruleError(ErrBadMerkleProof, str)
	}
	if len(msg.Flags) == 0 {
		return nil, ruleError(ErrBadMerkleProof, "merkle block carries "+
			"no flag bits")
	}

	proof := merkleProof{
		numTx:  msg.Transactions,
		hashes: msg.Hashes,
		flags:  msg.Flags,
	}

	// Calculate the number of merkle branches (height) in the tree.
	height := uint32(0)
	for proof.calcTreeWidth(height) > 1 {
		height++
	}

	root := proof.traverseAndExtract(height, 0)
	if proof.bad {
		return nil, ruleError(ErrBadMerkleProof, "merkle proof is not "+
			"consistent with the claimed transaction count")
	}

	// Every hash must be consumed by the traversal.
	if proof.hashUsed != len(msg.Hashes) {
		str := fmt.Sprintf("merkle proof left %d unused hashes",
			len(msg.Hashes)-proof.hashUsed)
		return nil, ruleError(ErrBadMerkleProof, str)
	}

	// Any flag bits beyond those consumed must be zero padding within the
	// final byte.
	if (proof.bitsUsed+7)/8 != len(msg.Flags) {
		str := fmt.Sprintf("merkle proof left %d unused flag bytes",
			len(msg.Flags)-(proof.bitsUsed+7)/8)
		return nil, ruleError(ErrBadMerkleProof, str)
	}
	for i := proof.bitsUsed; i < len(msg.Flags)*8; i++ {
		if (msg.Flags[i/8]>>(uint(i)%8))&0x01 != 0 {
			return nil, ruleError(ErrBadMerkleProof, "merkle proof "+
				"has non-zero padding bits")
		}
	}

	if !bytes.Equal(root[:], msg.Header.MerkleRoot[:]) {
		str := fmt.Sprintf("merkle proof root %v does not match "+
			"header merkle root %v", root, msg.Header.MerkleRoot)
		return nil, ruleError(ErrBadMerkleRoot, str)
	}

	return proof.matched, nil
}
