// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spv

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/blockchain"
	"github.com/INT-devs/mobile-wallets/bloom"
	"github.com/INT-devs/mobile-wallets/chaincfg"
	"github.com/INT-devs/mobile-wallets/storage"
	"github.com/INT-devs/mobile-wallets/wire"
)

// fakePeer implements SyncPeer and records every push so tests can assert on
// the exact requests the manager issued.
type fakePeer struct {
	id        int32
	addr      string
	lastBlock int32
	pushErr   error

	getHeaders   []*wire.MsgGetHeaders
	filterLoads  []*wire.MsgFilterLoad
	getData      []*wire.MsgGetData
	relayedTxns  []*wire.MsgTx
	disconnected bool
}

func (p *fakePeer) ID() int32        { return p.id }
func (p *fakePeer) Addr() string     { return p.addr }
func (p *fakePeer) LastBlock() int32 { return p.lastBlock }
func (p *fakePeer) Disconnect()      { p.disconnected = true }

func (p *fakePeer) PushGetHeaders(locator []*chainhash.Hash, stopHash *chainhash.Hash) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	msg := wire.NewMsgGetHeaders()
	msg.HashStop = *stopHash
	for _, hash := range locator {
		if err := msg.AddBlockLocatorHash(hash); err != nil {
			return err
		}
	}
	p.getHeaders = append(p.getHeaders, msg)
	return nil
}

func (p *fakePeer) PushFilterLoad(filter *wire.MsgFilterLoad) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	p.filterLoads = append(p.filterLoads, filter)
	return nil
}

func (p *fakePeer) PushGetData(inv *wire.MsgGetData) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	p.getData = append(p.getData, inv)
	return nil
}

func (p *fakePeer) PushTx(tx *wire.MsgTx) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	p.relayedTxns = append(p.relayedTxns, tx)
	return nil
}

// newFakePeer returns a fake peer advertising the given best height.
func newFakePeer(id int32, lastBlock int32) *fakePeer {
	return &fakePeer{
		id:        id,
		addr:      "10.0.0.1:14130",
		lastBlock: lastBlock,
	}
}

// testManager returns an unstarted manager over a fresh simnet chain.  The
// loop-owned handlers are driven directly by the tests, so the event handler
// goroutine is never launched.
func testManager(t *testing.T, watched [][]byte) *SyncManager {
	t.Helper()

	params := &chaincfg.SimNetParams
	now := params.GenesisHeader.Timestamp.Add(time.Hour)
	chain, err := blockchain.New(&blockchain.Config{
		Store:      storage.NewMemStore(),
		Params:     params,
		TimeSource: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("blockchain.New: unexpected error %v", err)
	}

	sm, err := New(&Config{
		Chain:   chain,
		Params:  params,
		Watched: watched,
	})
	if err != nil {
		t.Fatalf("New: unexpected error %v", err)
	}

	// Mirror the cursor initialization Start performs without launching
	// the event handler goroutine.
	sm.nextFetch = chain.BestSnapshot().Height + 1
	return sm
}

// solveHeader creates a header extending prev with the given merkle root and
// grinds the nonce until the hash satisfies the simnet proof of work.
func solveHeader(prev *wire.BlockHeader, timestamp time.Time,
	merkleRoot chainhash.Hash) *wire.BlockHeader {

	prevHash := prev.BlockHash()
	header := &wire.BlockHeader{
		Version:    1,
		PrevBlock:  prevHash,
		MerkleRoot: merkleRoot,
		Timestamp:  timestamp,
		Bits:       chaincfg.SimNetParams.PowLimitBits,
	}

	target := blockchain.CompactToBig(header.Bits)
	for nonce := uint32(0); ; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return header
		}
	}
}

// makeTestTx returns a transaction with a single output paying the given
// script.  The seed keeps otherwise identical transactions distinct.
func makeTestTx(pkScript []byte, seed uint32) *wire.MsgTx {
	tx := wire.NewMsgTx()
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, seed), nil))
	tx.AddTxOut(wire.NewTxOut(5000000, pkScript))
	return tx
}

// mineHeaders builds count solved headers on top of the manager's current
// best tip, each carrying a single transaction as its merkle root.  The
// headers are returned alongside their transactions but are not submitted to
// the chain.
func mineHeaders(t *testing.T, sm *SyncManager, pkScript []byte,
	count int) ([]*wire.BlockHeader, []*wire.MsgTx) {

	t.Helper()

	best := sm.chain.BestSnapshot()
	prev, err := sm.chain.HeaderByHeight(best.Height)
	if err != nil {
		t.Fatalf("HeaderByHeight(%d): %v", best.Height, err)
	}

	headers := make([]*wire.BlockHeader, 0, count)
	txns := make([]*wire.MsgTx, 0, count)
	for i := 0; i < count; i++ {
		tx := makeTestTx(pkScript, uint32(int(best.Height)+i))
		header := solveHeader(prev,
			prev.Timestamp.Add(time.Minute), tx.TxHash())
		headers = append(headers, header)
		txns = append(txns, tx)
		prev = header
	}
	return headers, txns
}

// headersMessage wraps headers into the wire message the manager consumes.
func headersMessage(t *testing.T, headers ...*wire.BlockHeader) *wire.MsgHeaders {
	t.Helper()

	msg := wire.NewMsgHeaders()
	for _, header := range headers {
		if err := msg.AddBlockHeader(header); err != nil {
			t.Fatalf("AddBlockHeader: %v", err)
		}
	}
	return msg
}

// merkleProof builds a merkle block proving the given transactions against
// the header using a filter that matches the watched script.
func merkleProof(t *testing.T, header *wire.BlockHeader, txns []*wire.MsgTx,
	watched []byte) *wire.MsgMerkleBlock {

	t.Helper()

	filter, err := bloom.NewFilter(1, 0, 0.000001, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if watched != nil {
		filter.Add(watched)
	}
	merkle, _ := bloom.NewMerkleBlock(header, txns, filter)
	return merkle
}

// drainEvents collects everything currently buffered on the event channel.
func drainEvents(sm *SyncManager) []Event {
	var events []Event
	for {
		select {
		case event := <-sm.eventChan:
			events = append(events, event)
		default:
			return events
		}
	}
}

// TestManagerNewErrors ensures the constructor rejects incomplete configs.
func TestManagerNewErrors(t *testing.T) {
	if _, err := New(&Config{Params: &chaincfg.SimNetParams}); err == nil {
		t.Fatal("New: accepted config without a chain")
	}

	chain, err := blockchain.New(&blockchain.Config{
		Store:  storage.NewMemStore(),
		Params: &chaincfg.SimNetParams,
	})
	if err != nil {
		t.Fatalf("blockchain.New: unexpected error %v", err)
	}
	if _, err := New(&Config{Chain: chain}); err == nil {
		t.Fatal("New: accepted config without params")
	}
}

// TestManagerNewPeerStartsSync ensures a connecting peer that is ahead of the
// chain receives the filter and an initial getheaders request.
func TestManagerNewPeerStartsSync(t *testing.T) {
	watched := [][]byte{{0x01, 0x02, 0x03}}
	sm := testManager(t, watched)

	peer := newFakePeer(1, 5)
	sm.handleNewPeerMsg(peer)

	if len(peer.filterLoads) != 1 {
		t.Fatalf("filter loads pushed: got %d, want 1",
			len(peer.filterLoads))
	}
	if len(peer.getHeaders) != 1 {
		t.Fatalf("getheaders pushed: got %d, want 1", len(peer.getHeaders))
	}
	locator := peer.getHeaders[0].BlockLocatorHashes
	if len(locator) == 0 ||
		*locator[len(locator)-1] != *chaincfg.SimNetParams.GenesisHash {

		t.Fatal("getheaders locator does not end at genesis")
	}
	if peer.getHeaders[0].HashStop != zeroHash {
		t.Fatal("getheaders stop hash is not zero")
	}

	if sm.syncPeer != peer {
		t.Fatal("peer was not chosen as the sync peer")
	}
	if sm.state != StateAwaitingHeaders {
		t.Fatalf("state: got %v, want %v", sm.state, StateAwaitingHeaders)
	}
	if sm.targetHeight != 5 {
		t.Fatalf("target height: got %d, want 5", sm.targetHeight)
	}
}

// TestManagerPeerAtSameHeight ensures a session with peers but none ahead of
// the chain is reported synced immediately.
func TestManagerPeerAtSameHeight(t *testing.T) {
	sm := testManager(t, nil)

	peer := newFakePeer(1, 0)
	sm.handleNewPeerMsg(peer)

	if len(peer.getHeaders) != 0 {
		t.Fatalf("getheaders pushed to peer at same height: got %d, want 0",
			len(peer.getHeaders))
	}
	if sm.state != StateSynced {
		t.Fatalf("state: got %v, want %v", sm.state, StateSynced)
	}

	events := drainEvents(sm)
	if len(events) != 1 {
		t.Fatalf("events emitted: got %d, want 1", len(events))
	}
	done, ok := events[0].(SyncCompleted)
	if !ok {
		t.Fatalf("event type: got %T, want SyncCompleted", events[0])
	}
	if done.Height != 0 {
		t.Fatalf("SyncCompleted height: got %d, want 0", done.Height)
	}
}

// TestManagerHeadersFlow walks a full session: headers are accepted, filtered
// blocks requested and served, and the completion event fires once the last
// proof lands.
func TestManagerHeadersFlow(t *testing.T) {
	sm := testManager(t, nil)
	headers, txns := mineHeaders(t, sm, []byte{0x51}, 3)

	peer := newFakePeer(1, 3)
	sm.handleNewPeerMsg(peer)
	drainEvents(sm)

	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    peer,
	})

	best := sm.chain.BestSnapshot()
	if best.Height != 3 {
		t.Fatalf("best height after headers: got %d, want 3", best.Height)
	}
	if !sm.headersDone {
		t.Fatal("short batch did not finish header sync")
	}
	if sm.state != StateAwaitingFilteredBlocks {
		t.Fatalf("state: got %v, want %v", sm.state,
			StateAwaitingFilteredBlocks)
	}

	// A single getdata covering every new height, in order.
	if len(peer.getData) != 1 {
		t.Fatalf("getdata pushed: got %d, want 1", len(peer.getData))
	}
	invs := peer.getData[0].InvList
	if len(invs) != 3 {
		t.Fatalf("getdata inventory: got %d entries, want 3", len(invs))
	}
	for i, iv := range invs {
		if iv.Type != wire.InvTypeFilteredBlock {
			t.Fatalf("inv %d type: got %v, want %v", i, iv.Type,
				wire.InvTypeFilteredBlock)
		}
		wantHash := headers[i].BlockHash()
		if iv.Hash != wantHash {
			t.Fatalf("inv %d hash: got %v, want %v", i, iv.Hash,
				wantHash)
		}
	}

	events := drainEvents(sm)
	var accepted int
	for _, event := range events {
		if _, ok := event.(HeaderAccepted); ok {
			accepted++
		}
	}
	if accepted != 3 {
		t.Fatalf("HeaderAccepted events: got %d, want 3", accepted)
	}

	// Serve the filtered blocks.  Nothing matches, so only progress and
	// the final completion event surface.
	for i, header := range headers {
		sm.handleMerkleBlockMsg(&merkleBlockMsg{
			merkle: merkleProof(t, header, txns[i:i+1], nil),
			peer:   peer,
		})
	}

	if sm.state != StateSynced {
		t.Fatalf("state after proofs: got %v, want %v", sm.state,
			StateSynced)
	}
	events = drainEvents(sm)
	if len(events) != 4 {
		t.Fatalf("events after proofs: got %d, want 4", len(events))
	}
	for i := 0; i < 3; i++ {
		progress, ok := events[i].(SyncProgress)
		if !ok {
			t.Fatalf("event %d type: got %T, want SyncProgress",
				i, events[i])
		}
		if progress.Height != int32(i+1) {
			t.Fatalf("progress height: got %d, want %d",
				progress.Height, i+1)
		}
	}
	done, ok := events[3].(SyncCompleted)
	if !ok {
		t.Fatalf("final event type: got %T, want SyncCompleted", events[3])
	}
	if done.Height != 3 {
		t.Fatalf("SyncCompleted height: got %d, want 3", done.Height)
	}
}

// TestManagerMatchedTransaction ensures a transaction proven by a merkle
// block surfaces as a confirmed match once the transaction itself arrives,
// and that unsolicited filter hits surface as unconfirmed.
func TestManagerMatchedTransaction(t *testing.T) {
	program := []byte{
		0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13,
		0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d,
	}
	pkScript := append([]byte{0x00, 0x14}, program...)

	sm := testManager(t, [][]byte{program})
	headers, txns := mineHeaders(t, sm, pkScript, 1)

	peer := newFakePeer(1, 1)
	sm.handleNewPeerMsg(peer)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    peer,
	})
	drainEvents(sm)

	sm.handleMerkleBlockMsg(&merkleBlockMsg{
		merkle: merkleProof(t, headers[0], txns, program),
		peer:   peer,
	})
	txHash := txns[0].TxHash()
	if _, ok := sm.pendingTxns[txHash]; !ok {
		t.Fatal("proven transaction was not recorded as pending")
	}
	drainEvents(sm)

	// The transaction follows the proof on the wire.
	sm.handleTxMsg(&txMsg{tx: txns[0], peer: peer})

	events := drainEvents(sm)
	if len(events) != 1 {
		t.Fatalf("events after tx: got %d, want 1", len(events))
	}
	matched, ok := events[0].(TxMatched)
	if !ok {
		t.Fatalf("event type: got %T, want TxMatched", events[0])
	}
	if matched.TxHash != txHash {
		t.Fatalf("matched tx hash: got %v, want %v", matched.TxHash,
			txHash)
	}
	wantBlock := headers[0].BlockHash()
	if matched.BlockHash != wantBlock {
		t.Fatalf("matched block hash: got %v, want %v",
			matched.BlockHash, wantBlock)
	}
	if matched.BlockHeight != 1 {
		t.Fatalf("matched block height: got %d, want 1",
			matched.BlockHeight)
	}
	if _, ok := sm.pendingTxns[txHash]; ok {
		t.Fatal("matched transaction still pending")
	}

	// An unsolicited transaction hitting the filter surfaces as an
	// unconfirmed match.
	mempoolTx := makeTestTx(pkScript, 1000)
	sm.handleTxMsg(&txMsg{tx: mempoolTx, peer: peer})
	events = drainEvents(sm)
	if len(events) != 1 {
		t.Fatalf("events after mempool tx: got %d, want 1", len(events))
	}
	matched, ok = events[0].(TxMatched)
	if !ok {
		t.Fatalf("event type: got %T, want TxMatched", events[0])
	}
	if matched.BlockHash != (chainhash.Hash{}) || matched.BlockHeight != 0 {
		t.Fatal("unconfirmed match carries block details")
	}

	// A transaction that misses the filter is dropped silently.
	sm.handleTxMsg(&txMsg{tx: makeTestTx([]byte{0x6a}, 2000), peer: peer})
	if events := drainEvents(sm); len(events) != 0 {
		t.Fatalf("events after unrelated tx: got %d, want 0", len(events))
	}
}

// TestManagerOrphanHeaders ensures a batch that does not connect draws a
// transient penalty and a fresh locator request.
func TestManagerOrphanHeaders(t *testing.T) {
	sm := testManager(t, nil)
	headers, _ := mineHeaders(t, sm, []byte{0x51}, 2)

	peer := newFakePeer(1, 2)
	sm.handleNewPeerMsg(peer)

	// Skip the first header so the second cannot connect.
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers[1]),
		peer:    peer,
	})

	if got := sm.chain.BestSnapshot().Height; got != 0 {
		t.Fatalf("best height after orphan batch: got %d, want 0", got)
	}
	if len(peer.getHeaders) != 2 {
		t.Fatalf("getheaders pushed: got %d, want 2 (initial plus "+
			"re-anchor)", len(peer.getHeaders))
	}
	state := sm.peerStates[peer]
	if score := state.banScore.Int(); score == 0 || score > transientPenalty {
		t.Fatalf("ban score after orphan: got %d, want (0, %d]",
			score, transientPenalty)
	}
}

// TestManagerBadHeaders ensures a header failing validation draws a
// persistent penalty and stops batch processing.
func TestManagerBadHeaders(t *testing.T) {
	sm := testManager(t, nil)

	peer := newFakePeer(1, 2)
	sm.handleNewPeerMsg(peer)

	// Grind for a hash above the target.
	genesis, err := sm.chain.HeaderByHeight(0)
	if err != nil {
		t.Fatalf("HeaderByHeight(0): %v", err)
	}
	header := &wire.BlockHeader{
		Version:   1,
		PrevBlock: genesis.BlockHash(),
		Timestamp: genesis.Timestamp.Add(time.Minute),
		Bits:      chaincfg.SimNetParams.PowLimitBits,
	}
	target := blockchain.CompactToBig(header.Bits)
	for nonce := uint32(0); ; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) > 0 {
			break
		}
	}

	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, header),
		peer:    peer,
	})

	if got := sm.chain.BestSnapshot().Height; got != 0 {
		t.Fatalf("best height after bad header: got %d, want 0", got)
	}
	state := sm.peerStates[peer]
	if score := state.banScore.Int(); score != persistentPenalty {
		t.Fatalf("ban score after bad header: got %d, want %d",
			score, persistentPenalty)
	}
}

// TestManagerUnrequestedData ensures headers from a peer that is neither the
// sync peer nor the backup, and merkle blocks that were never requested, draw
// penalties, with repeat offenders disconnected.
func TestManagerUnrequestedData(t *testing.T) {
	sm := testManager(t, nil)
	headers, _ := mineHeaders(t, sm, []byte{0x51}, 1)

	syncPeer := newFakePeer(1, 5)
	other := newFakePeer(2, 5)
	sm.handleNewPeerMsg(syncPeer)
	sm.handleNewPeerMsg(other)
	if sm.syncPeer != syncPeer {
		t.Fatal("first peer was not chosen as the sync peer")
	}

	// Headers from a peer that was never asked.
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    other,
	})
	if got := sm.chain.BestSnapshot().Height; got != 0 {
		t.Fatalf("unrequested headers were processed to height %d", got)
	}
	otherState := sm.peerStates[other]
	if score := otherState.banScore.Int(); score == 0 {
		t.Fatal("unrequested headers drew no penalty")
	}

	// Unrequested merkle blocks eventually cross the ban threshold.
	proof := merkleProof(t, headers[0], []*wire.MsgTx{makeTestTx([]byte{0x51}, 0)}, nil)
	for i := 0; i < 10 && !other.disconnected; i++ {
		sm.handleMerkleBlockMsg(&merkleBlockMsg{merkle: proof, peer: other})
	}
	if !other.disconnected {
		t.Fatal("repeat offender was not disconnected")
	}
	if syncPeer.disconnected {
		t.Fatal("sync peer was disconnected")
	}
}

// TestManagerBadMerkleBlock ensures a corrupt proof for a requested block is
// penalized and the block is fetched again.
func TestManagerBadMerkleBlock(t *testing.T) {
	sm := testManager(t, nil)
	headers, txns := mineHeaders(t, sm, []byte{0x51}, 1)

	peer := newFakePeer(1, 1)
	sm.handleNewPeerMsg(peer)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    peer,
	})
	if len(peer.getData) != 1 {
		t.Fatalf("getdata pushed: got %d, want 1", len(peer.getData))
	}

	proof := merkleProof(t, headers[0], txns, nil)
	proof.Hashes[0][0] ^= 0x01
	sm.handleMerkleBlockMsg(&merkleBlockMsg{merkle: proof, peer: peer})

	state := sm.peerStates[peer]
	if score := state.banScore.Int(); score != persistentPenalty {
		t.Fatalf("ban score after bad proof: got %d, want %d",
			score, persistentPenalty)
	}
	if len(peer.getData) != 2 {
		t.Fatalf("getdata pushed after bad proof: got %d, want 2 "+
			"(refetch)", len(peer.getData))
	}
	if sm.state == StateSynced {
		t.Fatal("session reported synced with a block still in flight")
	}

	// A good proof settles the block.
	sm.handleMerkleBlockMsg(&merkleBlockMsg{
		merkle: merkleProof(t, headers[0], txns, nil),
		peer:   peer,
	})
	if sm.state != StateSynced {
		t.Fatalf("state after refetch: got %v, want %v", sm.state,
			StateSynced)
	}
}

// TestManagerDonePeer ensures in-flight blocks are reassigned and a new sync
// peer is chosen when the current one disconnects.
func TestManagerDonePeer(t *testing.T) {
	sm := testManager(t, nil)
	headers, _ := mineHeaders(t, sm, []byte{0x51}, 2)

	first := newFakePeer(1, 10)
	second := newFakePeer(2, 8)
	sm.handleNewPeerMsg(first)
	sm.handleNewPeerMsg(second)
	if sm.syncPeer != first {
		t.Fatal("first peer was not chosen as the sync peer")
	}

	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    first,
	})
	if len(sm.peerStates[first].requestedBlocks) != 2 {
		t.Fatalf("blocks in flight on first peer: got %d, want 2",
			len(sm.peerStates[first].requestedBlocks))
	}

	sm.handleDonePeerMsg(first)

	if _, ok := sm.peerStates[first]; ok {
		t.Fatal("disconnected peer still tracked")
	}
	if sm.syncPeer != second {
		t.Fatal("second peer was not promoted to sync peer")
	}
	if len(second.getData) != 1 {
		t.Fatalf("getdata reassigned to second peer: got %d, want 1",
			len(second.getData))
	}
	if got := len(second.getData[0].InvList); got != 2 {
		t.Fatalf("reassigned inventory: got %d entries, want 2", got)
	}
	if len(second.getHeaders) != 1 {
		t.Fatalf("getheaders pushed to second peer: got %d, want 1",
			len(second.getHeaders))
	}

	// Losing an unknown peer is ignored.
	sm.handleDonePeerMsg(first)
}

// TestManagerReorg ensures a batch that switches the best chain rewinds the
// fetch cursor, prunes matches proven against detached blocks, and surfaces
// the reorganization.
func TestManagerReorg(t *testing.T) {
	sm := testManager(t, nil)

	peer := newFakePeer(1, 2)
	sm.handleNewPeerMsg(peer)

	aHeaders, _ := mineHeaders(t, sm, []byte{0x51}, 2)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, aHeaders...),
		peer:    peer,
	})
	if got := sm.chain.BestSnapshot().Height; got != 2 {
		t.Fatalf("best height after first branch: got %d, want 2", got)
	}
	drainEvents(sm)

	// Pretend a transaction was proven against the soon-detached tip.
	staleTxHash := chainhash.DoubleHashH([]byte("stale"))
	sm.pendingTxns[staleTxHash] = matchedBlock{
		hash:   aHeaders[1].BlockHash(),
		height: 2,
	}

	// A competing branch from genesis with more cumulative work.
	genesis, err := sm.chain.HeaderByHeight(0)
	if err != nil {
		t.Fatalf("HeaderByHeight(0): %v", err)
	}
	bHeaders := make([]*wire.BlockHeader, 0, 3)
	prev := genesis
	for i := 0; i < 3; i++ {
		tx := makeTestTx([]byte{0x52}, uint32(100+i))
		header := solveHeader(prev,
			prev.Timestamp.Add(2*time.Minute), tx.TxHash())
		bHeaders = append(bHeaders, header)
		prev = header
	}
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, bHeaders...),
		peer:    peer,
	})

	best := sm.chain.BestSnapshot()
	if best.Height != 3 {
		t.Fatalf("best height after reorg: got %d, want 3", best.Height)
	}
	if best.Hash != bHeaders[2].BlockHash() {
		t.Fatal("best hash is not the new branch tip")
	}
	if _, ok := sm.pendingTxns[staleTxHash]; ok {
		t.Fatal("match proven against a detached block survived the reorg")
	}

	var reorg *ChainReorg
	for _, event := range drainEvents(sm) {
		if ev, ok := event.(ChainReorg); ok {
			reorg = &ev
		}
	}
	if reorg == nil {
		t.Fatal("no ChainReorg event emitted")
	}
	if reorg.OldHeight != 2 || reorg.NewHeight != 3 {
		t.Fatalf("reorg heights: got %d -> %d, want 2 -> 3",
			reorg.OldHeight, reorg.NewHeight)
	}
	if len(reorg.DetachedHashes) != 2 || len(reorg.AttachedHashes) != 3 {
		t.Fatalf("reorg hashes: got %d detached and %d attached, "+
			"want 2 and 3", len(reorg.DetachedHashes),
			len(reorg.AttachedHashes))
	}

	// The whole attached range was requested again.
	last := peer.getData[len(peer.getData)-1]
	if got := len(last.InvList); got != 3 {
		t.Fatalf("post-reorg getdata: got %d entries, want 3", got)
	}
	if last.InvList[0].Hash != bHeaders[0].BlockHash() {
		t.Fatal("post-reorg fetch does not start at the fork point")
	}

	// Nothing from the detached branch is still awaited.
	for _, hash := range reorg.DetachedHashes {
		if _, ok := sm.pendingBlocks[hash]; ok {
			t.Fatal("detached block still queued after the reorg")
		}
	}
}

// TestManagerRebuildFilter ensures a rebuilt filter is pushed to every
// connected peer, and that rebuilding an idle manager only swaps the filter.
func TestManagerRebuildFilter(t *testing.T) {
	sm := testManager(t, [][]byte{{0x01}})

	first := newFakePeer(1, 5)
	second := newFakePeer(2, 5)
	sm.handleNewPeerMsg(first)
	sm.handleNewPeerMsg(second)

	oldFilter := sm.filter
	err := sm.handleRebuildFilterMsg([][]byte{{0x02}, {0x03}})
	if err != nil {
		t.Fatalf("handleRebuildFilterMsg: unexpected error %v", err)
	}
	if sm.filter == oldFilter {
		t.Fatal("filter was not replaced")
	}
	if len(first.filterLoads) != 2 || len(second.filterLoads) != 2 {
		t.Fatalf("filter loads pushed: got %d and %d, want 2 and 2",
			len(first.filterLoads), len(second.filterLoads))
	}

	// An idle manager swaps the filter without touching peers.
	idle := testManager(t, [][]byte{{0x01}})
	oldFilter = idle.filter
	if err := idle.RebuildAndResendFilter([][]byte{{0x04}}); err != nil {
		t.Fatalf("RebuildAndResendFilter: unexpected error %v", err)
	}
	if idle.filter == oldFilter {
		t.Fatal("idle rebuild did not replace the filter")
	}
}

// TestManagerBroadcastTx exercises transaction relay across the connected
// peer set.
func TestManagerBroadcastTx(t *testing.T) {
	sm := testManager(t, nil)
	tx := makeTestTx([]byte{0x51}, 0)

	// The exported entry point refuses before Start.
	if err := sm.BroadcastTx(tx); err == nil {
		t.Fatal("BroadcastTx: accepted on a manager that is not running")
	}

	// No peers.
	if err := sm.handleBroadcastTxMsg(tx); err == nil {
		t.Fatal("handleBroadcastTxMsg: no error with no peers")
	}

	first := newFakePeer(1, 5)
	second := newFakePeer(2, 5)
	sm.handleNewPeerMsg(first)
	sm.handleNewPeerMsg(second)

	if err := sm.handleBroadcastTxMsg(tx); err != nil {
		t.Fatalf("handleBroadcastTxMsg: unexpected error %v", err)
	}
	if len(first.relayedTxns) != 1 || len(second.relayedTxns) != 1 {
		t.Fatalf("relayed txns: got %d and %d, want 1 and 1",
			len(first.relayedTxns), len(second.relayedTxns))
	}

	// One failing peer does not fail the broadcast.
	first.pushErr = errors.New("broken pipe")
	if err := sm.handleBroadcastTxMsg(tx); err != nil {
		t.Fatalf("handleBroadcastTxMsg: unexpected error with one "+
			"failing peer: %v", err)
	}
	if len(second.relayedTxns) != 2 {
		t.Fatalf("relayed txns on healthy peer: got %d, want 2",
			len(second.relayedTxns))
	}

	// Every peer failing does.
	second.pushErr = errors.New("broken pipe")
	if err := sm.handleBroadcastTxMsg(tx); err == nil {
		t.Fatal("handleBroadcastTxMsg: no error with all peers failing")
	}
}

// TestManagerStartStop exercises the lifecycle of the event handler.
func TestManagerStartStop(t *testing.T) {
	sm := testManager(t, nil)

	sm.Start()
	sm.Start() // No-op.

	progress := sm.Progress()
	if progress.State != StateConnecting {
		t.Fatalf("state after Start: got %v, want %v", progress.State,
			StateConnecting)
	}
	if progress.BestHeight != 0 {
		t.Fatalf("best height after Start: got %d, want 0",
			progress.BestHeight)
	}

	if err := sm.Stop(); err != nil {
		t.Fatalf("Stop: unexpected error %v", err)
	}
	if err := sm.Stop(); err != nil {
		t.Fatalf("second Stop: unexpected error %v", err)
	}
	if sm.Progress().State != StateIdle {
		t.Fatalf("state after Stop: got %v, want %v",
			sm.Progress().State, StateIdle)
	}

	// Queueing against a stopped manager is a no-op rather than a hang.
	sm.NewPeer(newFakePeer(1, 5))
	sm.QueueHeaders(wire.NewMsgHeaders(), newFakePeer(2, 5))
	if err := sm.BroadcastTx(makeTestTx([]byte{0x51}, 0)); err == nil {
		t.Fatal("BroadcastTx: accepted on a stopped manager")
	}

	// A manager is single use.  Starting again after Stop stays idle.
	sm.Start()
	if sm.Progress().State != StateIdle {
		t.Fatalf("state after restart attempt: got %v, want %v",
			sm.Progress().State, StateIdle)
	}
}

// TestManagerPeerLossKeepsPendingBlocks ensures filtered blocks in flight
// when the last peer disconnects stay queued and are re-requested from the
// next peer to connect, and that the session does not report synced while
// they remain unserved.
func TestManagerPeerLossKeepsPendingBlocks(t *testing.T) {
	sm := testManager(t, nil)
	headers, txns := mineHeaders(t, sm, []byte{0x51}, 2)

	first := newFakePeer(1, 2)
	sm.handleNewPeerMsg(first)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    first,
	})
	if len(first.getData) != 1 {
		t.Fatalf("getdata pushed to first peer: got %d, want 1",
			len(first.getData))
	}

	sm.handleDonePeerMsg(first)

	if got := len(sm.pendingBlocks); got != 2 {
		t.Fatalf("queued blocks after losing last peer: got %d, want 2",
			got)
	}
	if sm.state == StateSynced {
		t.Fatal("session reported synced with blocks still queued")
	}

	// A fresh peer at the same height still has to serve the queued
	// blocks before the session is synced.
	second := newFakePeer(2, 2)
	sm.handleNewPeerMsg(second)
	if len(second.getData) != 1 {
		t.Fatalf("getdata pushed to second peer: got %d, want 1",
			len(second.getData))
	}
	if got := len(second.getData[0].InvList); got != 2 {
		t.Fatalf("re-requested inventory: got %d entries, want 2", got)
	}
	if sm.state == StateSynced {
		t.Fatal("session reported synced before proofs arrived")
	}

	for i, header := range headers {
		sm.handleMerkleBlockMsg(&merkleBlockMsg{
			merkle: merkleProof(t, header, txns[i:i+1], nil),
			peer:   second,
		})
	}
	if sm.state != StateSynced {
		t.Fatalf("state after proofs: got %v, want %v", sm.state,
			StateSynced)
	}
	if got := len(sm.pendingBlocks); got != 0 {
		t.Fatalf("queued blocks after proofs: got %d, want 0", got)
	}
}

// TestManagerPostSyncHeaders ensures the chain keeps following the tip after
// the initial sync completed, including announcements answered by a peer
// other than the original sync peer.
func TestManagerPostSyncHeaders(t *testing.T) {
	sm := testManager(t, nil)
	headers, txns := mineHeaders(t, sm, []byte{0x51}, 1)

	peer := newFakePeer(1, 1)
	sm.handleNewPeerMsg(peer)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, headers...),
		peer:    peer,
	})
	sm.handleMerkleBlockMsg(&merkleBlockMsg{
		merkle: merkleProof(t, headers[0], txns, nil),
		peer:   peer,
	})
	if sm.state != StateSynced {
		t.Fatalf("state after initial sync: got %v, want %v", sm.state,
			StateSynced)
	}
	drainEvents(sm)

	// The peer announces a freshly mined block and answers the follow-up
	// getheaders with it.
	next, nextTxns := mineHeaders(t, sm, []byte{0x51}, 1)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, next...),
		peer:    peer,
	})

	if got := sm.chain.BestSnapshot().Height; got != 2 {
		t.Fatalf("best height after announcement: got %d, want 2", got)
	}
	if len(peer.getData) != 2 {
		t.Fatalf("getdata pushed for the new block: got %d, want 2",
			len(peer.getData))
	}
	if sm.state != StateAwaitingFilteredBlocks {
		t.Fatalf("state after announcement: got %v, want %v", sm.state,
			StateAwaitingFilteredBlocks)
	}

	sm.handleMerkleBlockMsg(&merkleBlockMsg{
		merkle: merkleProof(t, next[0], nextTxns, nil),
		peer:   peer,
	})
	if sm.state != StateSynced {
		t.Fatalf("state after new proof: got %v, want %v", sm.state,
			StateSynced)
	}
	drainEvents(sm)

	// Once synced, an announcement from a peer that never was the sync
	// peer is processed without penalty.
	other := newFakePeer(2, 2)
	sm.handleNewPeerMsg(other)
	more, moreTxns := mineHeaders(t, sm, []byte{0x51}, 1)
	sm.handleHeadersMsg(&headersMsg{
		headers: headersMessage(t, more...),
		peer:    other,
	})
	if got := sm.chain.BestSnapshot().Height; got != 3 {
		t.Fatalf("best height after second announcement: got %d, want 3",
			got)
	}
	if score := sm.peerStates[other].banScore.Int(); score != 0 {
		t.Fatalf("ban score for announcing peer: got %d, want 0", score)
	}

	// The getdata for the announced block still goes to the sync peer.
	if len(peer.getData) != 3 {
		t.Fatalf("getdata pushed to sync peer: got %d, want 3",
			len(peer.getData))
	}
	sm.handleMerkleBlockMsg(&merkleBlockMsg{
		merkle: merkleProof(t, more[0], moreTxns, nil),
		peer:   peer,
	})
	if sm.state != StateSynced {
		t.Fatalf("state after following the tip: got %v, want %v",
			sm.state, StateSynced)
	}
}

// TestManagerRequestUnknownBlock ensures a block hash without a chain entry
// is neither tracked nor requested.
func TestManagerRequestUnknownBlock(t *testing.T) {
	sm := testManager(t, nil)

	peer := newFakePeer(1, 5)
	sm.handleNewPeerMsg(peer)
	drainEvents(sm)
	pushed := len(peer.getData)

	unknown := chainhash.DoubleHashH([]byte("nowhere"))
	sm.requestBlocks([]chainhash.Hash{unknown})

	if got := len(sm.pendingBlocks); got != 0 {
		t.Fatalf("queued blocks for unknown hash: got %d, want 0", got)
	}
	if len(peer.getData) != pushed {
		t.Fatal("getdata pushed for a hash without a chain entry")
	}
}
