// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/lru"

	"github.com/INT-devs/mobile-wallets/blockchain"
	"github.com/INT-devs/mobile-wallets/chaincfg"
	"github.com/INT-devs/mobile-wallets/spv"
	"github.com/INT-devs/mobile-wallets/wire"
)

const (
	// negotiateTimeout is the duration of inactivity before we timeout a
	// peer that hasn't completed the initial version negotiation.
	negotiateTimeout = 30 * time.Second

	// connectTimeout is the dial timeout for outbound connections.
	connectTimeout = 30 * time.Second

	// outputQueueSize is the number of queued outgoing messages before
	// senders block.
	outputQueueSize = 50

	// maxKnownInventory is the maximum number of items to keep in the
	// known inventory cache.
	maxKnownInventory = 1000
)

// nodeCount is the total number of peer connections made since startup and
// is used to assign an id to a peer.
var nodeCount int32

// serverPeer is an outbound TCP connection to a remote node.  It speaks the
// INT wire protocol and feeds received messages into the sync manager, which
// in turn drives it through the spv.SyncPeer interface.
type serverPeer struct {
	id      int32
	addr    string
	conn    net.Conn
	chain   *blockchain.HeaderChain
	manager *spv.SyncManager
	params  *chaincfg.Params

	lastBlock int32 // atomic

	// knownInventory tracks hashes the remote peer is known to have or to
	// have been sent so duplicate relays and requests are suppressed.
	knownInventory lru.Cache

	outputQueue chan wire.Message
	quit        chan struct{}
	wg          sync.WaitGroup

	disconnect int32 // atomic
}

// newServerPeer dials the given address, performs the version handshake, and
// starts the message handlers.  The returned peer has already been handed to
// the sync manager.
func newServerPeer(addr string, chain *blockchain.HeaderChain,
	manager *spv.SyncManager, params *chaincfg.Params) (*serverPeer, error) {

	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, err
	}

	sp := &serverPeer{
		id:             atomic.AddInt32(&nodeCount, 1),
		addr:           addr,
		conn:           conn,
		chain:          chain,
		manager:        manager,
		params:         params,
		knownInventory: lru.NewCache(maxKnownInventory),
		outputQueue:    make(chan wire.Message, outputQueueSize),
		quit:           make(chan struct{}),
	}

	if err := sp.negotiate(); err != nil {
		conn.Close()
		return nil, err
	}

	sp.wg.Add(2)
	go sp.inHandler()
	go sp.outHandler()

	peerLog.Infof("Connected to %s (last block %d)", sp.addr,
		sp.LastBlock())
	manager.NewPeer(sp)
	return sp, nil
}

// negotiate exchanges version and verack messages with the remote peer.  The
// local version is sent first since the connection is outbound.
func (sp *serverPeer) negotiate() error {
	sp.conn.SetDeadline(time.Now().Add(negotiateTimeout))
	defer sp.conn.SetDeadline(time.Time{})

	best := sp.chain.BestSnapshot()
	verMsg := wire.NewMsgVersion(rand.Uint64(), best.Height)
	err := wire.WriteMessage(sp.conn, verMsg, wire.ProtocolVersion,
		sp.params.Net)
	if err != nil {
		return err
	}

	// The remote peer must answer with its own version before anything
	// else.
	msg, _, err := wire.ReadMessage(sp.conn, wire.ProtocolVersion,
		sp.params.Net)
	if err != nil {
		return err
	}
	remoteVer, ok := msg.(*wire.MsgVersion)
	if !ok {
		return fmt.Errorf("peer %s sent %s before version", sp.addr,
			msg.Command())
	}
	atomic.StoreInt32(&sp.lastBlock, remoteVer.LastBlock)

	err = wire.WriteMessage(sp.conn, wire.NewMsgVerAck(),
		wire.ProtocolVersion, sp.params.Net)
	if err != nil {
		return err
	}

	// Wait for the remote verack to complete the handshake.
	msg, _, err = wire.ReadMessage(sp.conn, wire.ProtocolVersion,
		sp.params.Net)
	if err != nil {
		return err
	}
	if _, ok := msg.(*wire.MsgVerAck); !ok {
		return fmt.Errorf("peer %s sent %s before verack", sp.addr,
			msg.Command())
	}
	return nil
}

// inHandler reads messages from the connection and dispatches them until the
// peer disconnects.  It must be run as a goroutine.
func (sp *serverPeer) inHandler() {
out:
	for {
		msg, _, err := wire.ReadMessage(sp.conn, wire.ProtocolVersion,
			sp.params.Net)
		if err != nil {
			if atomic.LoadInt32(&sp.disconnect) == 0 {
				peerLog.Errorf("Can't read message from %s: %v",
					sp.addr, err)
			}
			break out
		}

		switch m := msg.(type) {
		case *wire.MsgHeaders:
			sp.manager.QueueHeaders(m, sp)

		case *wire.MsgMerkleBlock:
			sp.manager.QueueMerkleBlock(m, sp)

		case *wire.MsgTx:
			sp.knownInventory.Add(m.TxHash())
			sp.manager.QueueTx(m, sp)

		case *wire.MsgInv:
			sp.handleInvMsg(m)

		default:
			peerLog.Debugf("Ignoring %s message from %s",
				msg.Command(), sp.addr)
		}
	}

	sp.Disconnect()
	sp.wg.Done()
	sp.manager.DonePeer(sp)
	peerLog.Debugf("Peer input handler done for %s", sp.addr)
}

// handleInvMsg requests the data for announced transactions that match the
// remote filter and asks for new headers when an unknown block is announced.
func (sp *serverPeer) handleInvMsg(inv *wire.MsgInv) {
	gdmsg := wire.NewMsgGetData()
	for _, iv := range inv.InvList {
		switch iv.Type {
		case wire.InvTypeTx:
			// The remote node only announces transactions that
			// passed the loaded filter, so anything new is worth
			// fetching.
			if sp.knownInventory.Contains(iv.Hash) {
				continue
			}
			sp.knownInventory.Add(iv.Hash)
			gdmsg.AddInvVect(wire.NewInvVect(wire.InvTypeTx,
				&iv.Hash))

		case wire.InvTypeBlock:
			// A block announcement the header chain hasn't seen
			// means the peer extended its chain.  Ask for the
			// headers to catch up.
			if sp.chain.HaveHeader(&iv.Hash) {
				continue
			}
			locator := sp.chain.BlockLocator()
			sp.PushGetHeaders(locator, &zeroHash)
		}
	}
	if len(gdmsg.InvList) > 0 {
		sp.QueueMessage(gdmsg)
	}
}

// outHandler writes queued messages to the connection.  It must be run as a
// goroutine.
func (sp *serverPeer) outHandler() {
out:
	for {
		select {
		case msg := <-sp.outputQueue:
			err := wire.WriteMessage(sp.conn, msg,
				wire.ProtocolVersion, sp.params.Net)
			if err != nil {
				peerLog.Errorf("Can't send message to %s: %v",
					sp.addr, err)
				sp.Disconnect()
				break out
			}

		case <-sp.quit:
			break out
		}
	}
	sp.wg.Done()
	peerLog.Debugf("Peer output handler done for %s", sp.addr)
}

// QueueMessage adds the passed message to the peer send queue.  It drops the
// message when the peer is disconnecting.
func (sp *serverPeer) QueueMessage(msg wire.Message) {
	select {
	case sp.outputQueue <- msg:
	case <-sp.quit:
	}
}

// WaitForShutdown blocks until the peer handlers have stopped.
func (sp *serverPeer) WaitForShutdown() {
	sp.wg.Wait()
}

// ID returns the peer id.
//
// This function is safe for concurrent access.
func (sp *serverPeer) ID() int32 {
	return sp.id
}

// Addr returns the peer address.
//
// This function is safe for concurrent access.
func (sp *serverPeer) Addr() string {
	return sp.addr
}

// LastBlock returns the height the peer advertised during negotiation.
//
// This function is safe for concurrent access.
func (sp *serverPeer) LastBlock() int32 {
	return atomic.LoadInt32(&sp.lastBlock)
}

// PushGetHeaders sends a getheaders message for the blocks after the passed
// locator up to the stop hash.
func (sp *serverPeer) PushGetHeaders(locator []*chainhash.Hash,
	stopHash *chainhash.Hash) error {

	msg := wire.NewMsgGetHeaders()
	msg.HashStop = *stopHash
	for _, hash := range locator {
		if err := msg.AddBlockLocatorHash(hash); err != nil {
			return err
		}
	}
	sp.QueueMessage(msg)
	return nil
}

// PushFilterLoad installs the passed bloom filter on the remote peer.
func (sp *serverPeer) PushFilterLoad(filter *wire.MsgFilterLoad) error {
	sp.QueueMessage(filter)
	return nil
}

// PushGetData sends the passed getdata message requesting filtered blocks or
// transactions.
func (sp *serverPeer) PushGetData(inv *wire.MsgGetData) error {
	for _, iv := range inv.InvList {
		sp.knownInventory.Add(iv.Hash)
	}
	sp.QueueMessage(inv)
	return nil
}

// PushTx relays the passed transaction to the remote peer.
func (sp *serverPeer) PushTx(tx *wire.MsgTx) error {
	sp.knownInventory.Add(tx.TxHash())
	sp.QueueMessage(tx)
	return nil
}

// Disconnect closes the connection.  Calling it multiple times is a no-op.
func (sp *serverPeer) Disconnect() {
	if atomic.AddInt32(&sp.disconnect, 1) != 1 {
		return
	}

	peerLog.Tracef("Disconnecting %s", sp.addr)
	close(sp.quit)
	sp.conn.Close()
}

// zeroHash is the zero value hash (all zeros).  It is used as the stop hash
// when requesting as many headers as the remote peer will send.
var zeroHash chainhash.Hash
