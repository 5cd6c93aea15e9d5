// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spv

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/blockchain"
	"github.com/INT-devs/mobile-wallets/bloom"
	"github.com/INT-devs/mobile-wallets/chaincfg"
	"github.com/INT-devs/mobile-wallets/wire"
)

const (
	// defaultFalsePositiveRate is the bloom filter false positive rate
	// used when the config does not specify one.  It trades a little
	// bandwidth for keeping the watched set well hidden.
	defaultFalsePositiveRate = 0.0001

	// defaultEventBuffer is the capacity of the event channel when the
	// config does not specify one.
	defaultEventBuffer = 256

	// persistentPenalty and transientPenalty are the ban score bumps
	// applied for protocol violations and for suspicious but possibly
	// benign behavior respectively.
	persistentPenalty = 30
	transientPenalty  = 20
)

// zeroHash is the zero value hash (all zeros).  It is defined as a
// convenience.
var zeroHash chainhash.Hash

// newPeerMsg signifies a newly connected peer to the event handler.
type newPeerMsg struct {
	peer SyncPeer
}

// donePeerMsg signifies a newly disconnected peer to the event handler.
type donePeerMsg struct {
	peer SyncPeer
}

// headersMsg packages a headers message and the peer it came from together
// so the event handler has access to that information.
type headersMsg struct {
	headers *wire.MsgHeaders
	peer    SyncPeer
}

// merkleBlockMsg packages a merkle block message and the peer it came from
// together so the event handler has access to that information.
type merkleBlockMsg struct {
	merkle *wire.MsgMerkleBlock
	peer   SyncPeer
}

// txMsg packages a tx message and the peer it came from together so the
// event handler has access to that information.
type txMsg struct {
	tx   *wire.MsgTx
	peer SyncPeer
}

// rebuildFilterMsg carries a replacement watched set into the event handler.
type rebuildFilterMsg struct {
	watched [][]byte
	reply   chan error
}

// broadcastTxMsg carries a transaction to relay to all connected peers.
type broadcastTxMsg struct {
	tx    *wire.MsgTx
	reply chan error
}

// peerSyncState stores additional information the event handler tracks
// about a peer.
type peerSyncState struct {
	syncCandidate   bool
	banScore        dynamicBanScore
	requestedBlocks map[chainhash.Hash]struct{}
}

// matchedBlock identifies the accepted block a matched transaction hash was
// proven against while the transaction itself is still in flight.
type matchedBlock struct {
	hash   chainhash.Hash
	height int32
}

// Config is a descriptor for the sync manager configuration.
type Config struct {
	// Chain is the header chain the session feeds.
	//
	// This field is required.
	Chain *blockchain.HeaderChain

	// Params identifies the network being synced.
	//
	// This field is required.
	Params *chaincfg.Params

	// Watched is the initial set of watched items (scripts, public keys,
	// outpoints serialized as hash || index) loaded into the bloom
	// filter.
	Watched [][]byte

	// FalsePositiveRate overrides the bloom filter false positive rate.
	FalsePositiveRate float64

	// EventBuffer overrides the event channel capacity.
	EventBuffer int
}

// SyncManager drives a headers-first filtered sync session against a set of
// peers.  All chain and filter mutation happens on a single event handler
// goroutine; the exported methods merely queue messages for it.
//
// A manager is good for exactly one session.  Once stopped it cannot be
// restarted and a new one must be created.
type SyncManager struct {
	started  int32
	shutdown int32

	chain  *blockchain.HeaderChain
	params *chaincfg.Params
	fprate float64

	filterMtx sync.Mutex
	filter    *bloom.Filter

	msgChan   chan interface{}
	eventChan chan Event
	quit      chan struct{}
	wg        sync.WaitGroup

	// The following fields are only accessed from the event handler
	// goroutine (and before it starts).
	state         SyncState
	peerStates    map[SyncPeer]*peerSyncState
	syncPeer      SyncPeer
	backupPeer    SyncPeer
	headersDone   bool
	targetHeight  int32
	pendingBlocks map[chainhash.Hash]int32
	pendingTxns   map[chainhash.Hash]matchedBlock
	nextFetch     int32

	// progressMtx guards the mirror of the loop state read by Progress.
	progressMtx   sync.RWMutex
	progState     SyncState
	progTarget    int32
	progPeerTally int
}

// New constructs a new SyncManager.  Use Start to begin processing.
func New(config *Config) (*SyncManager, error) {
	if config.Chain == nil {
		return nil, fmt.Errorf("sync manager requires a header chain")
	}
	if config.Params == nil {
		return nil, fmt.Errorf("sync manager requires network params")
	}

	fprate := config.FalsePositiveRate
	if fprate <= 0 {
		fprate = defaultFalsePositiveRate
	}
	eventBuffer := config.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	sm := &SyncManager{
		chain:         config.Chain,
		params:        config.Params,
		fprate:        fprate,
		msgChan:       make(chan interface{}, 64),
		eventChan:     make(chan Event, eventBuffer),
		quit:          make(chan struct{}),
		state:         StateIdle,
		peerStates:    make(map[SyncPeer]*peerSyncState),
		pendingBlocks: make(map[chainhash.Hash]int32),
		pendingTxns:   make(map[chainhash.Hash]matchedBlock),
	}

	if len(config.Watched) > 0 {
		filter, err := buildFilter(config.Watched, fprate)
		if err != nil {
			return nil, err
		}
		sm.filter = filter
	}

	// Chain notifications fire synchronously inside ProcessHeader, which
	// the event handler calls, so the callback runs on the event handler
	// goroutine.
	config.Chain.Subscribe(sm.handleChainNotification)

	return sm, nil
}

// buildFilter constructs a bloom filter seeded with the given watched items.
func buildFilter(watched [][]byte, fprate float64) (*bloom.Filter, error) {
	filter, err := bloom.NewFilter(uint32(len(watched)), rand.Uint32(),
		fprate, wire.BloomUpdateAll)
	if err != nil {
		return nil, err
	}
	for _, item := range watched {
		filter.Add(item)
	}
	return filter, nil
}

// Events returns the channel sync events are delivered on.  The channel is
// buffered; when the consumer falls too far behind, events are dropped and a
// warning is logged.
func (sm *SyncManager) Events() <-chan Event {
	return sm.eventChan
}

// emitEvent delivers an event without ever blocking the event handler.
func (sm *SyncManager) emitEvent(event Event) {
	select {
	case sm.eventChan <- event:
	default:
		log.Warnf("Event channel full, dropping %T", event)
	}
}

// setState records a state transition and mirrors it for Progress.
func (sm *SyncManager) setState(state SyncState) {
	if sm.state == state {
		return
	}
	log.Debugf("Sync state %v -> %v", sm.state, state)
	sm.state = state

	sm.progressMtx.Lock()
	sm.progState = state
	sm.progressMtx.Unlock()
}

// mirrorProgress updates the Progress mirror of loop-owned counters.
func (sm *SyncManager) mirrorProgress() {
	sm.progressMtx.Lock()
	sm.progTarget = sm.targetHeight
	sm.progPeerTally = len(sm.peerStates)
	sm.progressMtx.Unlock()
}

// Progress returns a snapshot of the sync session.
//
// This function is safe for concurrent access.
func (sm *SyncManager) Progress() Progress {
	best := sm.chain.BestSnapshot()

	sm.progressMtx.RLock()
	defer sm.progressMtx.RUnlock()
	return Progress{
		State:        sm.progState,
		BestHash:     best.Hash,
		BestHeight:   best.Height,
		TargetHeight: sm.progTarget,
		PeerCount:    sm.progPeerTally,
	}
}

// Start begins the sync session by launching the event handler.  Calling
// Start on an already started or previously stopped manager is a no-op.
func (sm *SyncManager) Start() {
	// Already started?
	if atomic.AddInt32(&sm.started, 1) != 1 {
		return
	}

	log.Trace("Starting sync manager")
	sm.setState(StateConnecting)
	sm.nextFetch = sm.chain.BestSnapshot().Height + 1
	sm.wg.Add(1)
	go sm.eventHandler()
}

// Stop gracefully shuts down the sync manager by stopping the event handler
// and waiting for it to finish.  In-flight batches are discarded wholesale.
// Calling Stop more than once is a no-op, and a stopped manager cannot be
// started again.
func (sm *SyncManager) Stop() error {
	if atomic.AddInt32(&sm.shutdown, 1) != 1 {
		log.Warnf("Sync manager is already in the process of shutting down")
		return nil
	}

	log.Infof("Sync manager shutting down")
	sm.setState(StateStopping)
	close(sm.quit)
	sm.wg.Wait()
	sm.setState(StateIdle)
	return nil
}

// NewPeer informs the sync manager about a newly connected peer.
//
// It is non-blocking and safe for concurrent access.
func (sm *SyncManager) NewPeer(peer SyncPeer) {
	if atomic.LoadInt32(&sm.shutdown) != 0 {
		return
	}
	select {
	case sm.msgChan <- &newPeerMsg{peer: peer}:
	case <-sm.quit:
	}
}

// DonePeer informs the sync manager that a peer has disconnected.
//
// It is non-blocking and safe for concurrent access.
func (sm *SyncManager) DonePeer(peer SyncPeer) {
	if atomic.LoadInt32(&sm.shutdown) != 0 {
		return
	}
	select {
	case sm.msgChan <- &donePeerMsg{peer: peer}:
	case <-sm.quit:
	}
}

// QueueHeaders adds the passed headers message and peer to the event
// handling queue.
//
// It is non-blocking and safe for concurrent access.
func (sm *SyncManager) QueueHeaders(headers *wire.MsgHeaders, peer SyncPeer) {
	if atomic.LoadInt32(&sm.shutdown) != 0 {
		return
	}
	select {
	case sm.msgChan <- &headersMsg{headers: headers, peer: peer}:
	case <-sm.quit:
	}
}

// QueueMerkleBlock adds the passed merkle block message and peer to the
// event handling queue.
//
// It is non-blocking and safe for concurrent access.
func (sm *SyncManager) QueueMerkleBlock(merkle *wire.MsgMerkleBlock, peer SyncPeer) {
	if atomic.LoadInt32(&sm.shutdown) != 0 {
		return
	}
	select {
	case sm.msgChan <- &merkleBlockMsg{merkle: merkle, peer: peer}:
	case <-sm.quit:
	}
}

// QueueTx adds the passed transaction message and peer to the event
// handling queue.
//
// It is non-blocking and safe for concurrent access.
func (sm *SyncManager) QueueTx(tx *wire.MsgTx, peer SyncPeer) {
	if atomic.LoadInt32(&sm.shutdown) != 0 {
		return
	}
	select {
	case sm.msgChan <- &txMsg{tx: tx, peer: peer}:
	case <-sm.quit:
	}
}

// RebuildAndResendFilter replaces the bloom filter with one built from the
// passed watched set and pushes it to every connected peer.  The header
// chain is not reset.
//
// This function is safe for concurrent access.
func (sm *SyncManager) RebuildAndResendFilter(watched [][]byte) error {
	if atomic.LoadInt32(&sm.started) == 0 ||
		atomic.LoadInt32(&sm.shutdown) != 0 {

		// Not running, just swap the filter for the next session.
		filter, err := buildFilter(watched, sm.fprate)
		if err != nil {
			return err
		}
		sm.filterMtx.Lock()
		sm.filter = filter
		sm.filterMtx.Unlock()
		return nil
	}

	reply := make(chan error, 1)
	select {
	case sm.msgChan <- &rebuildFilterMsg{watched: watched, reply: reply}:
	case <-sm.quit:
		return fmt.Errorf("sync manager stopped")
	}
	select {
	case err := <-reply:
		return err
	case <-sm.quit:
		return fmt.Errorf("sync manager stopped")
	}
}

// BroadcastTx relays the passed transaction to every connected peer.  An
// error is returned when no peers are connected.
//
// This function is safe for concurrent access.
func (sm *SyncManager) BroadcastTx(tx *wire.MsgTx) error {
	if atomic.LoadInt32(&sm.started) == 0 ||
		atomic.LoadInt32(&sm.shutdown) != 0 {
		return fmt.Errorf("sync manager is not running")
	}

	reply := make(chan error, 1)
	select {
	case sm.msgChan <- &broadcastTxMsg{tx: tx, reply: reply}:
	case <-sm.quit:
		return fmt.Errorf("sync manager stopped")
	}
	select {
	case err := <-reply:
		return err
	case <-sm.quit:
		return fmt.Errorf("sync manager stopped")
	}
}

// eventHandler is the main handler for the sync manager.  It must be run as
// a goroutine.  It processes peer and message events serially so the header
// chain and bloom filter are never accessed concurrently.
func (sm *SyncManager) eventHandler() {
out:
	for {
		select {
		case m := <-sm.msgChan:
			switch msg := m.(type) {
			case *newPeerMsg:
				sm.handleNewPeerMsg(msg.peer)

			case *donePeerMsg:
				sm.handleDonePeerMsg(msg.peer)

			case *headersMsg:
				sm.handleHeadersMsg(msg)

			case *merkleBlockMsg:
				sm.handleMerkleBlockMsg(msg)

			case *txMsg:
				sm.handleTxMsg(msg)

			case *rebuildFilterMsg:
				msg.reply <- sm.handleRebuildFilterMsg(msg.watched)

			case *broadcastTxMsg:
				msg.reply <- sm.handleBroadcastTxMsg(msg.tx)

			default:
				log.Warnf("Invalid message type in event "+
					"handler: %T", msg)
			}

		case <-sm.quit:
			break out
		}
	}

	sm.wg.Done()
	log.Trace("Sync manager event handler done")
}

// handleChainNotification forwards chain notifications as sync events and
// keeps the in-flight bookkeeping consistent across reorganizations.  It
// runs on the event handler goroutine because the chain fires callbacks
// synchronously from ProcessHeader.
func (sm *SyncManager) handleChainNotification(notification *blockchain.Notification) {
	switch notification.Type {
	case blockchain.NTHeaderAccepted:
		data, ok := notification.Data.(*blockchain.HeaderAcceptedNtfnsData)
		if !ok {
			log.Warnf("Header accepted notification with bad data")
			return
		}
		if data.MainChain {
			sm.emitEvent(HeaderAccepted{
				Hash:   data.Hash,
				Height: data.Height,
			})
		}

	case blockchain.NTReorganization:
		data, ok := notification.Data.(*blockchain.ReorganizationNtfnsData)
		if !ok {
			log.Warnf("Reorganization notification with bad data")
			return
		}

		// Matched transactions proven against detached blocks are no
		// longer confirmed.  Drop them; the wallet learns the same
		// from the ChainReorg event.
		for txHash, blk := range sm.pendingTxns {
			for i := range data.DetachedHashes {
				if blk.hash.IsEqual(&data.DetachedHashes[i]) {
					delete(sm.pendingTxns, txHash)
					break
				}
			}
		}

		// Filtered blocks for the detached range will never be
		// useful, so stop waiting on them too.
		for i := range data.DetachedHashes {
			delete(sm.pendingBlocks, data.DetachedHashes[i])
			for _, state := range sm.peerStates {
				delete(state.requestedBlocks,
					data.DetachedHashes[i])
			}
		}

		// The attached range has not been scanned, so rewind the
		// fetch cursor to the fork point.
		forkHeight := data.NewHeight - int32(len(data.AttachedHashes))
		if sm.nextFetch > forkHeight+1 {
			sm.nextFetch = forkHeight + 1
		}

		sm.emitEvent(ChainReorg{
			OldHeight:      data.OldHeight,
			NewHeight:      data.NewHeight,
			NewHash:        data.NewHash,
			DetachedHashes: data.DetachedHashes,
			AttachedHashes: data.AttachedHashes,
		})
	}
}

// isSyncCandidate returns whether or not the peer is a candidate to consider
// syncing from.
func (sm *SyncManager) isSyncCandidate(peer SyncPeer) bool {
	return peer.LastBlock() > 0
}

// handleNewPeerMsg deals with new peers that have signalled they may be
// considered as a sync peer (they have already successfully negotiated).  It
// starts syncing if needed.
func (sm *SyncManager) handleNewPeerMsg(peer SyncPeer) {
	log.Infof("New valid peer %s", peer.Addr())

	sm.peerStates[peer] = &peerSyncState{
		syncCandidate:   sm.isSyncCandidate(peer),
		requestedBlocks: make(map[chainhash.Hash]struct{}),
	}
	sm.mirrorProgress()

	// Install the current filter so any filtered block the peer serves
	// is matched against the watched set.
	sm.filterMtx.Lock()
	filter := sm.filter
	sm.filterMtx.Unlock()
	if filter != nil {
		if err := peer.PushFilterLoad(filter.MsgFilterLoad()); err != nil {
			log.Warnf("Failed to push filter to %s: %v",
				peer.Addr(), err)
		}
	}

	// Hand any stranded filtered block requests to the new peer.
	sm.retryPendingBlocks()

	// Start syncing by choosing the best candidate if needed.
	if sm.syncPeer == nil {
		sm.startSync()
	}
}

// handleDonePeerMsg deals with peers that have signalled they are done.  It
// reassigns any in-flight requests the peer was serving and picks a new sync
// peer when the quitting peer was it.
func (sm *SyncManager) handleDonePeerMsg(peer SyncPeer) {
	state, ok := sm.peerStates[peer]
	if !ok {
		log.Warnf("Received done peer message for unknown peer %s",
			peer.Addr())
		return
	}
	delete(sm.peerStates, peer)
	sm.mirrorProgress()
	log.Infof("Lost peer %s", peer.Addr())

	if sm.backupPeer == peer {
		sm.backupPeer = nil
	}

	// Reassign any filtered blocks the peer was serving.
	if len(state.requestedBlocks) > 0 {
		retry := make([]chainhash.Hash, 0, len(state.requestedBlocks))
		for hash := range state.requestedBlocks {
			retry = append(retry, hash)
		}
		sm.requestBlocks(retry)
	}

	// Pick a new sync peer and restart the header sync when the quitting
	// peer was the sync peer.
	if sm.syncPeer == peer {
		sm.syncPeer = nil
		sm.startSync()
	}
}

// startSync will choose the best peer among the available candidate peers to
// download/sync the header chain from.  When syncing is already running, it
// simply returns.  It also examines the candidates for any which are no
// longer candidates and removes them as needed.
func (sm *SyncManager) startSync() {
	// Return now if we're already syncing.
	if sm.syncPeer != nil {
		return
	}

	best := sm.chain.BestSnapshot()
	var bestPeer SyncPeer
	var backupPeer SyncPeer
	for peer, state := range sm.peerStates {
		if !state.syncCandidate {
			continue
		}

		// Remove sync candidate peers that are no longer candidates
		// due to passing their latest known block.
		if peer.LastBlock() <= best.Height {
			state.syncCandidate = false
			continue
		}

		if bestPeer == nil || peer.LastBlock() > bestPeer.LastBlock() {
			backupPeer = bestPeer
			bestPeer = peer
		} else if backupPeer == nil {
			backupPeer = peer
		}
	}

	if bestPeer == nil {
		if len(sm.peerStates) > 0 {
			// Peers are connected but none is ahead of us, so the
			// chain is as current as it can be once every queued
			// filtered block has been served.
			sm.retryPendingBlocks()
			if len(sm.pendingBlocks) == 0 {
				sm.setSynced()
			}
		} else if sm.state != StateSynced {
			sm.setState(StateConnecting)
		}
		return
	}

	log.Infof("Syncing to block height %d from peer %s",
		bestPeer.LastBlock(), bestPeer.Addr())

	locator := sm.chain.BlockLocator()
	if err := bestPeer.PushGetHeaders(locator, &zeroHash); err != nil {
		log.Warnf("Failed to request headers from %s: %v",
			bestPeer.Addr(), err)
		return
	}
	sm.syncPeer = bestPeer
	sm.headersDone = false
	sm.targetHeight = bestPeer.LastBlock()
	sm.setState(StateAwaitingHeaders)
	sm.mirrorProgress()

	// Issue a redundant request to one backup peer so a stalled or
	// lying sync peer cannot silently wedge the session.
	sm.backupPeer = backupPeer
	if backupPeer != nil {
		if err := backupPeer.PushGetHeaders(locator, &zeroHash); err != nil {
			log.Debugf("Failed to request headers from backup "+
				"%s: %v", backupPeer.Addr(), err)
			sm.backupPeer = nil
		}
	}
}

// addBanScore increases the ban score of the given peer and disconnects it
// when the score crosses the ban threshold.
func (sm *SyncManager) addBanScore(peer SyncPeer, persistent, transient uint32, reason string) {
	state, ok := sm.peerStates[peer]
	if !ok {
		return
	}

	score := state.banScore.Increase(persistent, transient)
	if score > WarnThreshold {
		log.Warnf("Misbehaving peer %s: %s -- ban score is %d",
			peer.Addr(), reason, score)
	}
	if score > BanThreshold {
		log.Warnf("Misbehaving peer %s -- banning and disconnecting",
			peer.Addr())
		peer.Disconnect()
	}
}

// handleHeadersMsg handles headers messages from all peers.  Headers are
// submitted to the chain in order; a full batch triggers a follow-up
// getheaders request while a short batch moves the session on to fetching
// filtered blocks.
func (sm *SyncManager) handleHeadersMsg(hmsg *headersMsg) {
	peer := hmsg.peer
	if _, ok := sm.peerStates[peer]; !ok {
		log.Warnf("Received headers message from unknown peer %s",
			peer.Addr())
		return
	}

	// While the initial sync runs headers are only requested from the
	// sync peer and the backup.  Once synced, any peer may announce a
	// new block and answer the follow-up getheaders.
	if sm.state != StateSynced && peer != sm.syncPeer &&
		peer != sm.backupPeer {

		sm.addBanScore(peer, 0, transientPenalty,
			"unrequested headers")
		return
	}
	if sm.state != StateAwaitingHeaders &&
		sm.state != StateAwaitingFilteredBlocks &&
		sm.state != StateSynced {

		// A late batch from the backup peer after the sync moved on.
		return
	}

	for _, header := range hmsg.headers.Headers {
		status, err := sm.chain.ProcessHeader(header)
		if err != nil {
			var rErr blockchain.RuleError
			if asRuleError(err, &rErr) &&
				rErr.ErrorCode == blockchain.ErrDuplicateBlock {
				// The backup peer serves the same headers as
				// the sync peer.  Nothing misbehaving there.
				continue
			}

			log.Infof("Rejected header from %s: %v", peer.Addr(), err)
			sm.addBanScore(peer, persistentPenalty, 0, err.Error())
			return
		}

		if status == blockchain.StatusOrphan {
			// An honest peer answering our locator never produces
			// orphans, but a batch straddling a reorganization
			// can.  Re-anchor with a fresh locator.
			sm.addBanScore(peer, 0, transientPenalty,
				"orphan header in batch")
			locator := sm.chain.BlockLocator()
			if err := peer.PushGetHeaders(locator, &zeroHash); err != nil {
				log.Warnf("Failed to re-request headers from "+
					"%s: %v", peer.Addr(), err)
			}
			return
		}
	}

	// A full batch means the peer has more headers for us.
	if len(hmsg.headers.Headers) == wire.MaxHeadersPerMsg {
		locator := sm.chain.BlockLocator()
		if err := peer.PushGetHeaders(locator, &zeroHash); err != nil {
			log.Warnf("Failed to request more headers from %s: %v",
				peer.Addr(), err)
		}
		sm.setState(StateAwaitingHeaders)
		return
	}

	// A short (or empty) batch means header sync has caught up.  Move on
	// to fetching filtered blocks for the newly accepted range.
	sm.headersDone = true
	best := sm.chain.BestSnapshot()
	if best.Height > sm.targetHeight {
		sm.targetHeight = best.Height
		sm.mirrorProgress()
	}
	sm.fetchFilteredBlocks()
}

// fetchFilteredBlocks requests filtered blocks for every main chain height
// from the fetch cursor through the tip.  When there is nothing left to
// fetch the session is synced.
func (sm *SyncManager) fetchFilteredBlocks() {
	best := sm.chain.BestSnapshot()
	if sm.nextFetch > best.Height {
		if sm.headersDone && len(sm.pendingBlocks) == 0 {
			sm.setSynced()
		}
		return
	}

	hashes := make([]chainhash.Hash, 0, best.Height-sm.nextFetch+1)
	for height := sm.nextFetch; height <= best.Height; height++ {
		header, err := sm.chain.HeaderByHeight(height)
		if err != nil {
			log.Warnf("No header at height %d during fetch: %v",
				height, err)
			break
		}
		hashes = append(hashes, header.BlockHash())
	}
	sm.nextFetch = best.Height + 1
	sm.requestBlocks(hashes)
}

// requestBlocks issues getdata requests for the given block hashes to the
// sync peer, falling back to any connected candidate.  Requested blocks are
// tracked per peer so unrequested data can be detected.  Blocks that cannot
// be requested right now stay queued in pendingBlocks for a later retry.
func (sm *SyncManager) requestBlocks(hashes []chainhash.Hash) {
	if len(hashes) == 0 {
		return
	}

	// Queue the blocks before looking for a peer so a drained peer set
	// cannot drop them.
	pending := make([]chainhash.Hash, 0, len(hashes))
	for i := range hashes {
		hash := hashes[i]
		if _, ok := sm.pendingBlocks[hash]; ok {
			pending = append(pending, hash)
			continue
		}
		height, err := sm.heightOfHeader(&hash)
		if err != nil {
			log.Warnf("No chain entry for requested block %v: %v",
				hash, err)
			continue
		}
		sm.pendingBlocks[hash] = height
		pending = append(pending, hash)
	}
	if len(pending) == 0 {
		return
	}

	peer := sm.syncPeer
	if peer != nil {
		// The sync peer may have just disconnected.
		if _, ok := sm.peerStates[peer]; !ok {
			peer = nil
		}
	}
	if peer == nil {
		for p := range sm.peerStates {
			peer = p
			break
		}
	}
	if peer == nil {
		log.Warnf("No peers available to request %d filtered blocks, "+
			"queued for retry", len(pending))
		return
	}
	state := sm.peerStates[peer]

	gdmsg := wire.NewMsgGetDataSizeHint(uint(len(pending)))
	for i := range pending {
		hash := pending[i]
		iv := wire.NewInvVect(wire.InvTypeFilteredBlock, &hash)
		if err := gdmsg.AddInvVect(iv); err != nil {
			log.Warnf("Failed to build getdata: %v", err)
			return
		}
		state.requestedBlocks[hash] = struct{}{}
	}

	if err := peer.PushGetData(gdmsg); err != nil {
		log.Warnf("Failed to request filtered blocks from %s: %v",
			peer.Addr(), err)
		return
	}
	sm.setState(StateAwaitingFilteredBlocks)
}

// retryPendingBlocks re-requests every queued filtered block that is not in
// flight with any connected peer.  Queued blocks survive the loss of the
// entire peer set and are served once a peer is available again.
func (sm *SyncManager) retryPendingBlocks() {
	if len(sm.pendingBlocks) == 0 {
		return
	}

	retry := make([]chainhash.Hash, 0, len(sm.pendingBlocks))
	for hash := range sm.pendingBlocks {
		inFlight := false
		for _, state := range sm.peerStates {
			if _, ok := state.requestedBlocks[hash]; ok {
				inFlight = true
				break
			}
		}
		if !inFlight {
			retry = append(retry, hash)
		}
	}
	sm.requestBlocks(retry)
}

// heightOfHeader returns the chain height for the given header hash.
func (sm *SyncManager) heightOfHeader(hash *chainhash.Hash) (int32, error) {
	_, height, err := sm.chain.HeaderByHash(hash)
	return height, err
}

// handleMerkleBlockMsg handles merkle block messages from all peers.  The
// proof is only verified for blocks this manager requested and whose header
// has already been accepted into the chain.
func (sm *SyncManager) handleMerkleBlockMsg(bmsg *merkleBlockMsg) {
	peer := bmsg.peer
	state, ok := sm.peerStates[peer]
	if !ok {
		log.Warnf("Received merkle block from unknown peer %s",
			peer.Addr())
		return
	}

	blockHash := bmsg.merkle.Header.BlockHash()
	if _, requested := state.requestedBlocks[blockHash]; !requested {
		sm.addBanScore(peer, 0, transientPenalty,
			"unrequested merkle block")
		return
	}
	delete(state.requestedBlocks, blockHash)

	// The header must already be part of the chain.  A peer serving a
	// merkle block for an unknown header is lying about something.
	if !sm.chain.MainChainHasHeader(&blockHash) {
		delete(sm.pendingBlocks, blockHash)
		if !sm.chain.HaveHeader(&blockHash) {
			sm.addBanScore(peer, persistentPenalty, 0,
				"merkle block for unknown header")
		}
		return
	}

	matched, err := blockchain.VerifyMerkleBlock(bmsg.merkle)
	if err != nil {
		log.Infof("Rejected merkle block %v from %s: %v", blockHash,
			peer.Addr(), err)
		sm.addBanScore(peer, persistentPenalty, 0, err.Error())

		// The block itself is fine, the proof was bad.  Fetch it
		// again, preferably from someone else.
		delete(sm.pendingBlocks, blockHash)
		sm.requestBlocks([]chainhash.Hash{blockHash})
		return
	}

	height := sm.pendingBlocks[blockHash]
	delete(sm.pendingBlocks, blockHash)

	// Remember the matched hashes; the transactions themselves follow
	// as separate tx messages and are surfaced on arrival.
	for _, txHash := range matched {
		sm.pendingTxns[*txHash] = matchedBlock{
			hash:   blockHash,
			height: height,
		}
	}

	sm.emitEvent(SyncProgress{
		Height:       height,
		TargetHeight: sm.targetHeight,
	})

	if sm.headersDone && len(sm.pendingBlocks) == 0 {
		sm.setSynced()
	}
}

// handleTxMsg handles transaction messages from all peers.  Transactions
// proven by an earlier merkle block surface as confirmed matches; anything
// else matching the filter surfaces as an unconfirmed match.
func (sm *SyncManager) handleTxMsg(tmsg *txMsg) {
	if _, ok := sm.peerStates[tmsg.peer]; !ok {
		log.Warnf("Received tx message from unknown peer %s",
			tmsg.peer.Addr())
		return
	}

	txHash := tmsg.tx.TxHash()
	if blk, ok := sm.pendingTxns[txHash]; ok {
		delete(sm.pendingTxns, txHash)
		sm.emitEvent(TxMatched{
			Tx:          tmsg.tx,
			TxHash:      txHash,
			BlockHash:   blk.hash,
			BlockHeight: blk.height,
		})
		return
	}

	// Unsolicited transactions are accepted as unconfirmed matches when
	// they hit the filter, which is how mempool hits reach the wallet.
	sm.filterMtx.Lock()
	filter := sm.filter
	sm.filterMtx.Unlock()
	if filter != nil && filter.MatchTxAndUpdate(tmsg.tx) {
		sm.emitEvent(TxMatched{
			Tx:     tmsg.tx,
			TxHash: txHash,
		})
	}
}

// handleRebuildFilterMsg swaps in a filter built from the new watched set
// and pushes it to every connected peer.
func (sm *SyncManager) handleRebuildFilterMsg(watched [][]byte) error {
	filter, err := buildFilter(watched, sm.fprate)
	if err != nil {
		return err
	}

	sm.filterMtx.Lock()
	sm.filter = filter
	sm.filterMtx.Unlock()

	msg := filter.MsgFilterLoad()
	for peer := range sm.peerStates {
		if err := peer.PushFilterLoad(msg); err != nil {
			log.Warnf("Failed to push rebuilt filter to %s: %v",
				peer.Addr(), err)
		}
	}
	return nil
}

// handleBroadcastTxMsg relays the transaction to every connected peer.
func (sm *SyncManager) handleBroadcastTxMsg(tx *wire.MsgTx) error {
	if len(sm.peerStates) == 0 {
		return fmt.Errorf("no connected peers to broadcast to")
	}

	var relayed int
	for peer := range sm.peerStates {
		if err := peer.PushTx(tx); err != nil {
			log.Warnf("Failed to relay tx to %s: %v", peer.Addr(),
				err)
			continue
		}
		relayed++
	}
	if relayed == 0 {
		return fmt.Errorf("failed to relay transaction to any peer")
	}
	return nil
}

// setSynced marks the session synced and emits the completion event.
func (sm *SyncManager) setSynced() {
	if sm.state == StateSynced {
		return
	}
	best := sm.chain.BestSnapshot()
	log.Infof("Sync complete at height %d (%v)", best.Height, best.Hash)
	sm.setState(StateSynced)
	sm.emitEvent(SyncCompleted{
		Hash:   best.Hash,
		Height: best.Height,
	})
}

// asRuleError unwraps err into a blockchain.RuleError when possible.
func asRuleError(err error, target *blockchain.RuleError) bool {
	rErr, ok := err.(blockchain.RuleError)
	if ok {
		*target = rErr
	}
	return ok
}
