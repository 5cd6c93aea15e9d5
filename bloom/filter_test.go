// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/bloom"
	"github.com/INT-devs/mobile-wallets/wire"
)

// TestNewFilterErrors tests the parameter validation of NewFilter.
func TestNewFilterErrors(t *testing.T) {
	_, err := bloom.NewFilter(0, 0, 0.01, wire.BloomUpdateNone)
	if err != bloom.ErrInvalidElementCount {
		t.Errorf("NewFilter: got %v, want %v", err,
			bloom.ErrInvalidElementCount)
	}

	for _, fprate := range []float64{0, -0.5, 1.5} {
		_, err := bloom.NewFilter(10, 0, fprate, wire.BloomUpdateNone)
		if err != bloom.ErrInvalidFPRate {
			t.Errorf("NewFilter(fprate=%v): got %v, want %v",
				fprate, err, bloom.ErrInvalidFPRate)
		}
	}
}

// TestFilterInsert tests that everything added to a filter matches, even
// when the filter is reloaded from its wire representation.
func TestFilterInsert(t *testing.T) {
	f, err := bloom.NewFilter(4, 0x00000005, 0.001, wire.BloomUpdateAll)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}

	entries := [][]byte{
		{0x99, 0x10, 0x8a, 0xd8},
		{0xb5, 0xa2, 0xc7, 0x86},
		{0xb9, 0x30, 0x06, 0x70},
		{0xb1, 0x72, 0x1d, 0x15},
	}
	for _, entry := range entries {
		f.Add(entry)
	}
	for i, entry := range entries {
		if !f.Matches(entry) {
			t.Errorf("Matches: entry #%d not found", i)
		}
	}

	// Absent values should almost never match at this rate.
	misses := 0
	for i := 0; i < 100; i++ {
		if !f.Matches([]byte{0xde, 0xad, byte(i)}) {
			misses++
		}
	}
	if misses < 90 {
		t.Errorf("Matches: too many false positives (%d misses of 100)",
			misses)
	}

	// Loading the serialized filter preserves the matches.
	reloaded := bloom.LoadFilter(f.MsgFilterLoad())
	for i, entry := range entries {
		if !reloaded.Matches(entry) {
			t.Errorf("Matches: entry #%d not found after reload", i)
		}
	}
}

// TestFilterNoFalseNegatives inserts a large number of items and verifies
// every single one still matches.
func TestFilterNoFalseNegatives(t *testing.T) {
	const numItems = 10000

	f, err := bloom.NewFilter(numItems, 0, 0.001, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	items := make([][]byte, numItems)
	for i := range items {
		item := make([]byte, 32)
		rng.Read(item)
		items[i] = item
		f.Add(item)
	}

	for i, item := range items {
		if !f.Matches(item) {
			t.Fatalf("Matches: item #%d lost", i)
		}
	}
}

// TestFilterFalsePositiveRate inserts items at a given false positive rate
// then samples absent items to verify the observed rate is in the expected
// neighborhood.
func TestFilterFalsePositiveRate(t *testing.T) {
	const numItems = 10000
	const numProbes = 100000
	const targetRate = 0.001

	f, err := bloom.NewFilter(numItems, 0, targetRate, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < numItems; i++ {
		var item [8]byte
		binary.LittleEndian.PutUint64(item[:], uint64(i))
		f.Add(item[:])
	}

	// Probe values disjoint from the inserted key space.
	falsePositives := 0
	for i := 0; i < numProbes; i++ {
		var probe [9]byte
		probe[0] = 0xff
		binary.LittleEndian.PutUint64(probe[1:], rng.Uint64())
		if f.Matches(probe[:]) {
			falsePositives++
		}
	}

	// Allow generous slack around the configured rate since the filter
	// sizing rounds and the probes are random.
	observed := float64(falsePositives) / float64(numProbes)
	if observed > targetRate*3 {
		t.Fatalf("false positive rate too high: observed %v, "+
			"target %v", observed, targetRate)
	}
}

// TestFilterReloadUnload tests the loaded state transitions.
func TestFilterReloadUnload(t *testing.T) {
	f, err := bloom.NewFilter(10, 0, 0.01, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}
	if !f.IsLoaded() {
		t.Fatal("IsLoaded: new filter is not loaded")
	}

	f.Add([]byte("data"))
	if !f.Matches([]byte("data")) {
		t.Fatal("Matches: added data not found")
	}

	// Reloading with a fresh filter discards previous matches.
	fresh, err := bloom.NewFilter(10, 0, 0.01, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}
	f.Reload(fresh.MsgFilterLoad())
	if f.Matches([]byte("data")) {
		t.Fatal("Matches: data survived a reload")
	}

	// Unloaded filters match nothing and accept nothing.
	f.Unload()
	if f.IsLoaded() {
		t.Fatal("IsLoaded: filter still loaded after Unload")
	}
	f.Add([]byte("data"))
	if f.Matches([]byte("data")) {
		t.Fatal("Matches: unloaded filter matched")
	}
}

// TestFilterOutPoint tests outpoint insertion and matching.
func TestFilterOutPoint(t *testing.T) {
	f, err := bloom.NewFilter(10, 0, 0.000001, wire.BloomUpdateAll)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}

	hash := chainhash.DoubleHashH([]byte("spent tx"))
	outpoint := wire.NewOutPoint(&hash, 0)
	f.AddOutPoint(outpoint)

	if !f.MatchesOutPoint(outpoint) {
		t.Fatal("MatchesOutPoint: added outpoint not found")
	}

	other := wire.NewOutPoint(&hash, 1)
	if f.MatchesOutPoint(other) {
		t.Fatal("MatchesOutPoint: unexpected match for other index")
	}
}

// TestFilterMatchTxAndUpdate tests transaction matching against output
// scripts and the automatic outpoint insertion on match.
func TestFilterMatchTxAndUpdate(t *testing.T) {
	f, err := bloom.NewFilter(10, 0, 0.000001, wire.BloomUpdateAll)
	if err != nil {
		t.Fatalf("NewFilter: unexpected error %v", err)
	}

	// Watch a 20 byte script data push.
	watched := make([]byte, 20)
	for i := range watched {
		watched[i] = byte(i + 1)
	}
	f.Add(watched)

	// A transaction paying to the watched data matches.  The script is a
	// canonical version 0 witness program push.
	tx := wire.NewMsgTx()
	prevHash := chainhash.DoubleHashH([]byte("funding"))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil))
	pkScript := append([]byte{0x00, 0x14}, watched...)
	tx.AddTxOut(wire.NewTxOut(5000000, pkScript))

	if !f.MatchTxAndUpdate(tx) {
		t.Fatal("MatchTxAndUpdate: paying tx did not match")
	}

	// The update flag means the matched output's outpoint was added, so a
	// transaction spending it now matches too.
	txHash := tx.TxHash()
	spender := wire.NewMsgTx()
	spender.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&txHash, 0), nil))
	spender.AddTxOut(wire.NewTxOut(4000000, []byte{0x6a}))

	if !f.MatchTxAndUpdate(spender) {
		t.Fatal("MatchTxAndUpdate: spending tx did not match")
	}

	// An unrelated transaction does not match.
	unrelated := wire.NewMsgTx()
	otherHash := chainhash.DoubleHashH([]byte("other"))
	unrelated.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&otherHash, 3), nil))
	unrelated.AddTxOut(wire.NewTxOut(100, []byte{0x00, 0x14, 0x55}))

	if f.MatchTxAndUpdate(unrelated) {
		t.Fatal("MatchTxAndUpdate: unrelated tx matched")
	}
}
