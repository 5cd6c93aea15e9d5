// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"

	"github.com/INT-devs/mobile-wallets/wire"
)

// testHeader returns a block header populated with fixed values so the
// serialized form is deterministic.
func testHeader() *wire.BlockHeader {
	prevHash := chainhash.Hash{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
	}
	merkleHash := chainhash.Hash{
		0x20, 0x1f, 0x1e, 0x1d, 0x1c, 0x1b, 0x1a, 0x19,
		0x18, 0x17, 0x16, 0x15, 0x14, 0x13, 0x12, 0x11,
		0x10, 0x0f, 0x0e, 0x0d, 0x0c, 0x0b, 0x0a, 0x09,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	header := wire.NewBlockHeader(1, &prevHash, &merkleHash, 0x1e0ffff0,
		0x12345678)
	header.Timestamp = time.Unix(0x60000000, 0)
	return header
}

// TestBlockHeaderSerialize tests the 80 byte serialization of a block header
// and that all of the serialization entry points round trip.
func TestBlockHeaderSerialize(t *testing.T) {
	header := testHeader()

	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: unexpected error %v", err)
	}
	if buf.Len() != 80 {
		t.Fatalf("Serialize: wrong length - got %d, want 80", buf.Len())
	}

	// The stream decoder must reproduce the original header.
	var decoded wire.BlockHeader
	if err := decoded.Deserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Deserialize: unexpected error %v", err)
	}
	if !reflect.DeepEqual(&decoded, header) {
		t.Fatalf("Deserialize: mismatch - got %v, want %v",
			spew.Sdump(&decoded), spew.Sdump(header))
	}

	// As must the byte slice helpers.
	headerBytes, err := header.Bytes()
	if err != nil {
		t.Fatalf("Bytes: unexpected error %v", err)
	}
	if !bytes.Equal(headerBytes, buf.Bytes()) {
		t.Fatalf("Bytes: mismatch - got %x, want %x", headerBytes,
			buf.Bytes())
	}
	var fromBytes wire.BlockHeader
	if err := fromBytes.FromBytes(headerBytes); err != nil {
		t.Fatalf("FromBytes: unexpected error %v", err)
	}
	if !reflect.DeepEqual(&fromBytes, header) {
		t.Fatalf("FromBytes: mismatch - got %v, want %v",
			spew.Sdump(&fromBytes), spew.Sdump(header))
	}
}

// TestBlockHeaderHash tests that the block hash is stable and changes with
// the header contents.
func TestBlockHeaderHash(t *testing.T) {
	header := testHeader()
	hash := header.BlockHash()
	if hash != header.BlockHash() {
		t.Fatal("BlockHash: hash is not deterministic")
	}

	modified := *header
	modified.Nonce++
	if modified.BlockHash() == hash {
		t.Fatal("BlockHash: hash did not change with the nonce")
	}
}

// TestBlockHeaderDecodeErrors tests that truncated input is rejected.
func TestBlockHeaderDecodeErrors(t *testing.T) {
	header := testHeader()
	headerBytes, err := header.Bytes()
	if err != nil {
		t.Fatalf("Bytes: unexpected error %v", err)
	}

	for _, size := range []int{0, 1, 35, 79} {
		var decoded wire.BlockHeader
		err := decoded.FromBytes(headerBytes[:size])
		if err == nil {
			t.Errorf("FromBytes: no error with %d byte input", size)
		}
	}
}
