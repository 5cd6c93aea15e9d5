// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/chaincfg"
	"github.com/INT-devs/mobile-wallets/storage"
	"github.com/INT-devs/mobile-wallets/wire"
)

const (
	// maxOrphanHeaders is the maximum number of orphan headers that can
	// be queued.  Once the pool is full the oldest orphan is evicted to
	// make room.
	maxOrphanHeaders = 100

	// medianTimeBlocks is the number of previous headers which should be
	// used to calculate the median time used to validate header
	// timestamps.
	medianTimeBlocks = 11

	// maxTimeOffsetSeconds is the maximum number of seconds a header
	// timestamp is allowed to be ahead of the current time.
	maxTimeOffsetSeconds = 2 * 60 * 60
)

// Keys and key prefixes used to persist the best chain in the backing
// store.  Headers are keyed by big-endian height so the store iterates
// them in chain order.
var (
	headerKeyPrefix = []byte("h")
	tipKey          = []byte("tip")
)

// headerKey returns the store key for the main chain header at the given
// height.
func headerKey(height int32) []byte {
	var key [5]byte
	key[0] = headerKeyPrefix[0]
	binary.BigEndian.PutUint32(key[1:], uint32(height))
	return key[:]
}

// HeaderStatus is the result of submitting a header to ProcessHeader.
type HeaderStatus int

const (
	// StatusAccepted indicates the header connected to the chain, either
	// extending the best chain, extending a side chain, or triggering a
	// reorganization.
	StatusAccepted HeaderStatus = iota

	// StatusOrphan indicates the header references an unknown parent and
	// has been queued pending its arrival.
	StatusOrphan

	// StatusRejectedInvalidPoW indicates the header was rejected because
	// its proof of work is invalid.
	StatusRejectedInvalidPoW

	// StatusRejectedBadLinkage indicates the header was rejected because
	// it cannot be placed in the chain, such as failing a checkpoint,
	// forking below the last checkpoint, carrying an invalid timestamp,
	// or duplicating a known header.
	StatusRejectedBadLinkage
)

// headerStatusStrings is a map of header statuses back to their constant
// names for pretty printing.
var headerStatusStrings = map[HeaderStatus]string{
	StatusAccepted:           "StatusAccepted",
	StatusOrphan:             "StatusOrphan",
	StatusRejectedInvalidPoW: "StatusRejectedInvalidPoW",
	StatusRejectedBadLinkage: "StatusRejectedBadLinkage",
}

// String returns the HeaderStatus in human-readable form.
func (s HeaderStatus) String() string {
	if str, ok := headerStatusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown HeaderStatus (%d)", int(s))
}

// blockNode represents a header within the chain and is used to aid in
// selecting the best chain to be the main chain.
type blockNode struct {
	// parent is the parent node of this node.
	parent *blockNode

	// hash is the hash of the header this node represents.
	hash chainhash.Hash

	// height is the position in the chain of the header this node
	// represents.
	height int32

	// workSum is the total amount of work in the chain up to and
	// including this node.
	workSum *big.Int

	// header is the full header this node represents.
	header wire.BlockHeader
}

// newBlockNode returns a new node for the given header and parent.  The
// work sum is calculated based on the parent.
func newBlockNode(header *wire.BlockHeader, parent *blockNode) *blockNode {
	node := blockNode{
		hash:    header.BlockHash(),
		workSum: CalcWork(header.Bits),
		header:  *header,
	}
	if parent != nil {
		node.parent = parent
		node.height = parent.height + 1
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
	return &node
}

// ancestor returns the ancestor node at the given height by following the
// parent pointers.  Nil is returned when the height is out of range.
func (node *blockNode) ancestor(height int32) *blockNode {
	if height < 0 || height > node.height {
		return nil
	}
	n := node
	for n != nil && n.height != height {
		n = n.parent
	}
	return n
}

// calcPastMedianTime calculates the median time of the previous several
// headers prior to, and including, the node.
func (node *blockNode) calcPastMedianTime() time.Time {
	timestamps := make([]int64, 0, medianTimeBlocks)
	n := node
	for i := 0; i < medianTimeBlocks && n != nil; i++ {
		timestamps = append(timestamps, n.header.Timestamp.Unix())
		n = n.parent
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})
	return time.Unix(timestamps[len(timestamps)/2], 0)
}

// orphanHeader represents a header that does not yet connect to the chain
// together with the time it was received, which is used for eviction when
// the orphan pool is full.
type orphanHeader struct {
	header   *wire.BlockHeader
	received time.Time
}

// BestState houses information about the current best chain tip.  It is a
// snapshot and the returned instance must be treated as immutable.
type BestState struct {
	Hash      chainhash.Hash
	Height    int32
	Bits      uint32
	Timestamp time.Time
	WorkSum   *big.Int
}

// newBestState returns a new best state for the given node.
func newBestState(node *blockNode) *BestState {
	return &BestState{
		Hash:      node.hash,
		Height:    node.height,
		Bits:      node.header.Bits,
		Timestamp: node.header.Timestamp,
		WorkSum:   new(big.Int).Set(node.workSum),
	}
}

// Config is a descriptor which specifies the header chain instance
// configuration.
type Config struct {
	// Store defines the persistence layer for the chain.  Headers on the
	// best chain and the tip are written through to it.
	//
	// This field is required.
	Store storage.Store

	// Params identifies the network the chain is associated with.
	//
	// This field is required.
	Params *chaincfg.Params

	// TimeSource returns the current time used for timestamp validation.
	// When nil, time.Now is used.
	TimeSource func() time.Time
}

// HeaderChain provides functions for validating and inserting headers into
// the main chain along with orphan handling, checkpoint enforcement, and
// most-work fork choice.  Filtered block contents are intentionally out of
// scope, only headers flow through it.
type HeaderChain struct {
	params     *chaincfg.Params
	store      storage.Store
	timeSource func() time.Time

	// checkpointsByHeight provides O(1) checkpoint lookup, and
	// lastCheckpointHeight bounds how deep a fork may reach.
	checkpointsByHeight  map[int32]*chainhash.Hash
	lastCheckpointHeight int32

	// chainLock protects the fields below it in concurrent access.
	chainLock sync.RWMutex

	// index holds every known node, main chain and side chains alike,
	// keyed by header hash.  mainChain holds the best chain nodes by
	// height.
	index     map[chainhash.Hash]*blockNode
	mainChain []*blockNode
	bestNode  *blockNode

	// These fields house the orphan pool.  They are protected by the
	// chain lock as well since orphan processing happens inline with
	// header processing.
	orphans     map[chainhash.Hash]*orphanHeader
	prevOrphans map[chainhash.Hash][]*orphanHeader

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// New returns a HeaderChain using the provided configuration.  When the
// backing store already contains a chain for the configured network it is
// loaded and validated, otherwise the store is seeded with the genesis
// header.  Persisted data that fails validation results in a
// CorruptionError.
func New(config *Config) (*HeaderChain, error) {
	if config.Store == nil {
		return nil, AssertError("headerchain.New requires a store")
	}
	if config.Params == nil {
		return nil, AssertError("headerchain.New requires network params")
	}

	params := config.Params
	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = time.Now
	}

	checkpointsByHeight := make(map[int32]*chainhash.Hash)
	var lastCheckpointHeight int32
	for i := range params.Checkpoints {
		checkpoint := &params.Checkpoints[i]
		checkpointsByHeight[checkpoint.Height] = checkpoint.Hash
		if checkpoint.Height > lastCheckpointHeight {
			lastCheckpointHeight = checkpoint.Height
		}
	}

	c := &HeaderChain{
		params:               params,
		store:                config.Store,
		timeSource:           timeSource,
		checkpointsByHeight:  checkpointsByHeight,
		lastCheckpointHeight: lastCheckpointHeight,
		index:                make(map[chainhash.Hash]*blockNode),
		orphans:              make(map[chainhash.Hash]*orphanHeader),
		prevOrphans:          make(map[chainhash.Hash][]*orphanHeader),
	}

	if err := c.initChainState(); err != nil {
		return nil, err
	}

	log.Infof("Chain state (height %d, hash %v)", c.bestNode.height,
		c.bestNode.hash)
	return c, nil
}

// initChainState loads the best chain from the store, or seeds the store
// with the genesis header when it is empty.
func (c *HeaderChain) initChainState() error {
	tipBytes, err := c.store.Get(tipKey)
	if err == storage.ErrKeyNotFound {
		return c.createChainState()
	}
	if err != nil {
		return err
	}
	if len(tipBytes) != 4 {
		return corruptionError("malformed chain tip entry", nil)
	}
	tipHeight := int32(binary.BigEndian.Uint32(tipBytes))

	var prev *blockNode
	for height := int32(0); height <= tipHeight; height++ {
		serialized, err := c.store.Get(headerKey(height))
		if err != nil {
			str := fmt.Sprintf("missing header at height %d", height)
			return corruptionError(str, err)
		}
		var header wire.BlockHeader
		if err := header.FromBytes(serialized); err != nil {
			str := fmt.Sprintf("malformed header at height %d", height)
			return corruptionError(str, err)
		}

		node := newBlockNode(&header, prev)
		if prev == nil {
			if !node.hash.IsEqual(c.params.GenesisHash) {
				str := fmt.Sprintf("stored genesis %v does not "+
					"match network %s", node.hash,
					c.params.Name)
				return corruptionError(str, nil)
			}
		} else if !header.PrevBlock.IsEqual(&prev.hash) {
			str := fmt.Sprintf("header at height %d does not "+
				"connect to its parent", height)
			return corruptionError(str, nil)
		}

		c.index[node.hash] = node
		c.mainChain = append(c.mainChain, node)
		prev = node
	}

	c.bestNode = prev
	return nil
}

// createChainState initializes both the memory and persisted chain state to
// the genesis header.
func (c *HeaderChain) createChainState() error {
	header := c.params.GenesisHeader
	node := newBlockNode(header, nil)
	c.index[node.hash] = node
	c.mainChain = []*blockNode{node}
	c.bestNode = node

	serialized, err := header.Bytes()
	if err != nil {
		return err
	}
	if err := c.store.Put(headerKey(0), serialized); err != nil {
		return err
	}
	return c.putTip(0)
}

// putTip persists the best chain height.
func (c *HeaderChain) putTip(height int32) error {
	var tipBytes [4]byte
	binary.BigEndian.PutUint32(tipBytes[:], uint32(height))
	return c.store.Put(tipKey, tipBytes[:])
}

// BestSnapshot returns information about the current best chain tip.
//
// This function is safe for concurrent access.
func (c *HeaderChain) BestSnapshot() *BestState {
	c.chainLock.RLock()
	snapshot := newBestState(c.bestNode)
	c.chainLock.RUnlock()
	return snapshot
}

// HaveHeader returns whether or not the chain instance has the header
// represented by the passed hash.  This includes checking the various places
// a header can be: part of the main chain, on a side chain, or in the orphan
// pool.
//
// This function is safe for concurrent access.
func (c *HeaderChain) HaveHeader(hash *chainhash.Hash) bool {
	c.chainLock.RLock()
	_, haveNode := c.index[*hash]
	_, haveOrphan := c.orphans[*hash]
	c.chainLock.RUnlock()
	return haveNode || haveOrphan
}

// HeaderByHash returns the header identified by the given hash along with
// its height in the chain that contains it.  Orphans are not searched.
//
// This function is safe for concurrent access.
func (c *HeaderChain) HeaderByHash(hash *chainhash.Hash) (*wire.BlockHeader, int32, error) {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	node, ok := c.index[*hash]
	if !ok {
		return nil, 0, fmt.Errorf("header %v is not known", hash)
	}
	header := node.header
	return &header, node.height, nil
}

// HeaderByHeight returns the main chain header at the given height.
//
// This function is safe for concurrent access.
func (c *HeaderChain) HeaderByHeight(height int32) (*wire.BlockHeader, error) {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	if height < 0 || height >= int32(len(c.mainChain)) {
		return nil, fmt.Errorf("no header at height %d", height)
	}
	header := c.mainChain[height].header
	return &header, nil
}

// MainChainHasHeader returns whether the header with the given hash is part
// of the current best chain.
//
// This function is safe for concurrent access.
func (c *HeaderChain) MainChainHasHeader(hash *chainhash.Hash) bool {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	node, ok := c.index[*hash]
	return ok && c.inMainChain(node)
}

// inMainChain returns whether the passed node is part of the current best
// chain.
//
// This function MUST be called with the chain lock held (for reads).
func (c *HeaderChain) inMainChain(node *blockNode) bool {
	return node.height < int32(len(c.mainChain)) &&
		c.mainChain[node.height] == node
}

// IsCurrent returns whether or not the chain believes it is current.  The
// chain is considered current when the tip is above the final checkpoint
// and its timestamp is within 24 hours of the present.
//
// This function is safe for concurrent access.
func (c *HeaderChain) IsCurrent() bool {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	if c.bestNode.height < c.lastCheckpointHeight {
		return false
	}
	minus24Hours := c.timeSource().Add(-24 * time.Hour)
	return c.bestNode.header.Timestamp.After(minus24Hours)
}

// BlockLocator returns a block locator for the current best chain tip.  The
// locator starts densely at the tip and doubles the stride the further back
// it goes, always terminating with the genesis hash, which lets a remote
// peer efficiently find the fork point with this chain.
//
// This function is safe for concurrent access.
func (c *HeaderChain) BlockLocator() []*chainhash.Hash {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	// Calculate the max number of entries that will ultimately be in the
	// locator.  See the description of the algorithm for how these
	// numbers are derived.
	node := c.bestNode
	var maxEntries uint8
	if node.height <= 12 {
		maxEntries = uint8(node.height) + 1
	} else {
		adjustedHeight := uint32(node.height) - 10
		maxEntries = 12 + fastLog2Floor(adjustedHeight)
	}
	locator := make([]*chainhash.Hash, 0, maxEntries)

	step := int32(1)
	for node != nil {
		hash := node.hash
		locator = append(locator, &hash)

		// Nothing more to add once the genesis hash has been added.
		if node.height == 0 {
			break
		}

		// Calculate height of previous node to include ensuring the
		// final node is the genesis header.
		height := node.height - step
		if height < 0 {
			height = 0
		}
		node = c.mainChain[height]

		// Once 11 entries have been included, start doubling the
		// distance between included hashes.
		if len(locator) > 10 {
			step *= 2
		}
	}

	return locator
}

// fastLog2Floor calculates and returns floor(log2(x)) in a constant 5 steps.
func fastLog2Floor(n uint32) uint8 {
	rv := uint8(0)
	exponent := uint8(16)
	for i := 0; i < 5; i++ {
		if n&(0xffffffff<<exponent) != 0 {
			rv += exponent
			n >>= exponent
		}
		exponent >>= 1
	}
	return rv
}

// checkHeaderSanity performs context free checks on a header, which amounts
// to the proof of work and basic timestamp validity.
func (c *HeaderChain) checkHeaderSanity(header *wire.BlockHeader) (HeaderStatus, error) {
	// The target difficulty must be larger than zero.
	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("target difficulty of %064x is too low",
			target)
		return StatusRejectedInvalidPoW,
			ruleError(ErrUnexpectedDifficulty, str)
	}

	// The target difficulty must be less than the maximum allowed.
	if target.Cmp(c.params.PowLimit) > 0 {
		str := fmt.Sprintf("target difficulty of %064x is higher than "+
			"max of %064x", target, c.params.PowLimit)
		return StatusRejectedInvalidPoW,
			ruleError(ErrUnexpectedDifficulty, str)
	}

	// The header hash must be less than the claimed target.
	hash := header.BlockHash()
	hashNum := HashToBig(&hash)
	if hashNum.Cmp(target) > 0 {
		str := fmt.Sprintf("hash %064x is higher than expected max "+
			"of %064x", hashNum, target)
		return StatusRejectedInvalidPoW, ruleError(ErrHighHash, str)
	}

	// A header timestamp must not have a greater precision than one
	// second.  Go timestamps support nanosecond precision whereas the
	// consensus rules only apply to seconds.
	if !header.Timestamp.Equal(time.Unix(header.Timestamp.Unix(), 0)) {
		str := fmt.Sprintf("header timestamp of %v has a higher "+
			"precision than one second", header.Timestamp)
		return StatusRejectedBadLinkage, ruleError(ErrInvalidTime, str)
	}

	// Ensure the header timestamp is not too far in the future.
	maxTimestamp := c.timeSource().Add(time.Second * maxTimeOffsetSeconds)
	if header.Timestamp.After(maxTimestamp) {
		str := fmt.Sprintf("header timestamp of %v is too far in the "+
			"future", header.Timestamp)
		return StatusRejectedBadLinkage, ruleError(ErrTimeTooNew, str)
	}

	return StatusAccepted, nil
}

// checkHeaderContext performs validation that depends on the header's
// position within the chain.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) checkHeaderContext(header *wire.BlockHeader, prevNode *blockNode) (HeaderStatus, error) {
	// Ensure the timestamp for the header is after the median time of
	// the last several headers.
	medianTime := prevNode.calcPastMedianTime()
	if !header.Timestamp.After(medianTime) {
		str := fmt.Sprintf("header timestamp of %v is not after "+
			"expected %v", header.Timestamp, medianTime)
		return StatusRejectedBadLinkage, ruleError(ErrTimeTooOld, str)
	}

	// Ensure the header at a checkpoint height matches the hard-coded
	// checkpoint hash.
	height := prevNode.height + 1
	if cpHash, ok := c.checkpointsByHeight[height]; ok {
		hash := header.BlockHash()
		if !hash.IsEqual(cpHash) {
			str := fmt.Sprintf("header at height %d does not "+
				"match checkpoint hash %v", height, cpHash)
			return StatusRejectedBadLinkage,
				ruleError(ErrBadCheckpoint, str)
		}
	}

	// Reject any header that would fork the chain at or before the most
	// recent checkpoint.  The fork point is the closest ancestor of the
	// parent that is part of the best chain.
	if c.lastCheckpointHeight > 0 && !c.inMainChain(prevNode) {
		forkNode := prevNode
		for forkNode != nil && !c.inMainChain(forkNode) {
			forkNode = forkNode.parent
		}
		if forkNode == nil || forkNode.height < c.lastCheckpointHeight {
			str := fmt.Sprintf("header forks the chain before "+
				"the last checkpoint at height %d",
				c.lastCheckpointHeight)
			return StatusRejectedBadLinkage,
				ruleError(ErrForkTooOld, str)
		}
	}

	return StatusAccepted, nil
}

// ProcessHeader is the main workhorse for handling insertion of new headers
// into the chain.  It includes functionality such as rejecting duplicates,
// validating proof of work and timestamps, enforcing checkpoints, handling
// orphans, and most-work fork choice including reorganizations.
//
// This function is safe for concurrent access.
func (c *HeaderChain) ProcessHeader(header *wire.BlockHeader) (HeaderStatus, error) {
	c.chainLock.Lock()
	defer c.chainLock.Unlock()

	hash := header.BlockHash()
	log.Tracef("Processing header %v", hash)

	// The header must not already exist in the chain or the orphan pool.
	if _, ok := c.index[hash]; ok {
		str := fmt.Sprintf("already have header %v", hash)
		return StatusRejectedBadLinkage, ruleError(ErrDuplicateBlock, str)
	}
	if _, ok := c.orphans[hash]; ok {
		str := fmt.Sprintf("already have header (orphan) %v", hash)
		return StatusRejectedBadLinkage, ruleError(ErrDuplicateBlock, str)
	}

	// Perform preliminary sanity checks before doing any work that
	// depends on its position in the chain.
	if status, err := c.checkHeaderSanity(header); err != nil {
		return status, err
	}

	// Handle orphan headers.
	prevNode, ok := c.index[header.PrevBlock]
	if !ok {
		log.Infof("Adding orphan header %v with parent %v", hash,
			header.PrevBlock)
		c.addOrphanHeader(header)
		return StatusOrphan, nil
	}

	// The header is not an orphan, so validate it within the context of
	// its parent and connect it to the chain.
	status, err := c.maybeAcceptHeader(header, prevNode)
	if err != nil {
		return status, err
	}

	// Accept any orphan headers that depend on this header (they are no
	// longer orphans) and repeat for those accepted headers until there
	// are no more.
	if err := c.processOrphans(&hash); err != nil {
		return StatusAccepted, err
	}

	log.Debugf("Accepted header %v", hash)
	return StatusAccepted, nil
}

// addOrphanHeader adds the passed header to the orphan pool, evicting the
// oldest entry when the pool is full.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) addOrphanHeader(header *wire.BlockHeader) {
	// Evict the oldest orphan to make room when the pool is full.
	if len(c.orphans)+1 > maxOrphanHeaders {
		var oldest *orphanHeader
		var oldestHash chainhash.Hash
		for hash, orphan := range c.orphans {
			if oldest == nil || orphan.received.Before(oldest.received) {
				oldest = orphan
				oldestHash = hash
			}
		}
		c.removeOrphanHeader(&oldestHash)
	}

	hash := header.BlockHash()
	orphan := &orphanHeader{
		header:   header,
		received: c.timeSource(),
	}
	c.orphans[hash] = orphan
	prevHash := header.PrevBlock
	c.prevOrphans[prevHash] = append(c.prevOrphans[prevHash], orphan)
}

// removeOrphanHeader removes the orphan with the given hash from the orphan
// pool along with its entry in the previous-hash index.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) removeOrphanHeader(hash *chainhash.Hash) {
	orphan, ok := c.orphans[*hash]
	if !ok {
		return
	}
	delete(c.orphans, *hash)

	prevHash := orphan.header.PrevBlock
	orphans := c.prevOrphans[prevHash]
	for i := 0; i < len(orphans); i++ {
		orphanHash := orphans[i].header.BlockHash()
		if orphanHash.IsEqual(hash) {
			orphans = append(orphans[:i], orphans[i+1:]...)
			i--
		}
	}
	c.prevOrphans[prevHash] = orphans

	// Remove the map entry altogether if there are no longer any orphans
	// which depend on the parent hash.
	if len(c.prevOrphans[prevHash]) == 0 {
		delete(c.prevOrphans, prevHash)
	}
}

// processOrphans determines if there are any orphans which depend on the
// accepted header hash and connects them recursively.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) processOrphans(hash *chainhash.Hash) error {
	// Start with processing at least the passed hash.  Leave a little
	// room for additional orphans that get accepted along the way, but
	// the slice will grow as needed.
	processHashes := make([]*chainhash.Hash, 0, 10)
	processHashes = append(processHashes, hash)
	for len(processHashes) > 0 {
		processHash := processHashes[0]
		processHashes[0] = nil
		processHashes = processHashes[1:]

		for i := 0; i < len(c.prevOrphans[*processHash]); i++ {
			orphan := c.prevOrphans[*processHash][i]
			orphanHash := orphan.header.BlockHash()
			c.removeOrphanHeader(&orphanHash)
			i--

			prevNode, ok := c.index[*processHash]
			if !ok {
				return AssertError("processOrphans missing parent")
			}
			_, err := c.maybeAcceptHeader(orphan.header, prevNode)
			if err != nil {
				// The orphan is invalid in context.  Drop it
				// and continue with its siblings.
				log.Debugf("Rejected orphan header %v: %v",
					orphanHash, err)
				continue
			}

			processHashes = append(processHashes, &orphanHash)
		}
	}
	return nil
}

// maybeAcceptHeader validates the header within the context of its parent
// and, when valid, connects it to the chain.  The caller has already
// verified the parent exists.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) maybeAcceptHeader(header *wire.BlockHeader, prevNode *blockNode) (HeaderStatus, error) {
	if status, err := c.checkHeaderContext(header, prevNode); err != nil {
		return status, err
	}

	node := newBlockNode(header, prevNode)
	c.index[node.hash] = node

	// When the header extends the best chain, connect it directly.
	if prevNode == c.bestNode {
		if err := c.connectNode(node); err != nil {
			return StatusRejectedBadLinkage, err
		}
		c.sendNotification(NTHeaderAccepted, &HeaderAcceptedNtfnsData{
			Header:    node.header,
			Hash:      node.hash,
			Height:    node.height,
			MainChain: true,
		})
		return StatusAccepted, nil
	}

	// The header extends a side chain.  Reorganize when the side chain
	// has strictly more cumulative work than the current best chain,
	// otherwise just track it.
	if node.workSum.Cmp(c.bestNode.workSum) <= 0 {
		log.Infof("Header %v extends a side chain at height %d "+
			"(work %v vs best %v)", node.hash, node.height,
			node.workSum, c.bestNode.workSum)
		c.sendNotification(NTHeaderAccepted, &HeaderAcceptedNtfnsData{
			Header:    node.header,
			Hash:      node.hash,
			Height:    node.height,
			MainChain: false,
		})
		return StatusAccepted, nil
	}

	if err := c.reorganizeChain(node); err != nil {
		return StatusRejectedBadLinkage, err
	}
	return StatusAccepted, nil
}

// connectNode appends the node to the best chain and persists it.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) connectNode(node *blockNode) error {
	serialized, err := node.header.Bytes()
	if err != nil {
		return err
	}
	if err := c.store.Put(headerKey(node.height), serialized); err != nil {
		return err
	}
	if err := c.putTip(node.height); err != nil {
		return err
	}

	c.mainChain = append(c.mainChain, node)
	c.bestNode = node
	return nil
}

// reorganizeChain switches the best chain to the branch ending in the passed
// node.  The detached and attached header sets are reported via an
// NTReorganization notification so downstream consumers can roll their state
// back.
//
// This function MUST be called with the chain lock held (for writes).
func (c *HeaderChain) reorganizeChain(newBest *blockNode) error {
	// Find the fork point by walking the new branch back until reaching
	// a node that is part of the current best chain.
	forkNode := newBest
	for forkNode != nil && !c.inMainChain(forkNode) {
		forkNode = forkNode.parent
	}
	if forkNode == nil {
		return AssertError("reorganize with no common ancestor")
	}

	oldBest := c.bestNode

	// Collect the nodes being detached, from the old tip down to just
	// above the fork point.
	var detached []chainhash.Hash
	for height := oldBest.height; height > forkNode.height; height-- {
		detached = append(detached, c.mainChain[height].hash)
	}

	// Collect the nodes being attached, from just above the fork point
	// up to the new tip.
	var attachNodes []*blockNode
	for node := newBest; node != forkNode; node = node.parent {
		attachNodes = append(attachNodes, node)
	}
	for i, j := 0, len(attachNodes)-1; i < j; i, j = i+1, j-1 {
		attachNodes[i], attachNodes[j] = attachNodes[j], attachNodes[i]
	}

	// Persist the new branch.  Headers above the fork point are
	// overwritten and any leftover heights beyond the new tip removed.
	for _, node := range attachNodes {
		serialized, err := node.header.Bytes()
		if err != nil {
			return err
		}
		if err := c.store.Put(headerKey(node.height), serialized); err != nil {
			return err
		}
	}
	for height := newBest.height + 1; height <= oldBest.height; height++ {
		if err := c.store.Delete(headerKey(height)); err != nil {
			return err
		}
	}
	if err := c.putTip(newBest.height); err != nil {
		return err
	}

	// Update the in-memory main chain.
	c.mainChain = c.mainChain[:forkNode.height+1]
	attached := make([]chainhash.Hash, 0, len(attachNodes))
	for _, node := range attachNodes {
		c.mainChain = append(c.mainChain, node)
		attached = append(attached, node.hash)
	}
	c.bestNode = newBest

	log.Infof("REORGANIZE: Chain forks at height %d, old tip %v (%d), "+
		"new tip %v (%d)", forkNode.height, oldBest.hash,
		oldBest.height, newBest.hash, newBest.height)

	c.sendNotification(NTReorganization, &ReorganizationNtfnsData{
		OldHash:        oldBest.hash,
		OldHeight:      oldBest.height,
		NewHash:        newBest.hash,
		NewHeight:      newBest.height,
		DetachedHashes: detached,
		AttachedHashes: attached,
	})
	return nil
}
