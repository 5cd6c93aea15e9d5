// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/INT-devs/mobile-wallets/blockchain"
	"github.com/INT-devs/mobile-wallets/mobilerpc"
	"github.com/INT-devs/mobile-wallets/spv"
	"github.com/INT-devs/mobile-wallets/storage"
	"github.com/INT-devs/mobile-wallets/wallet"
)

const (
	// headersDbName is the directory under the per-network data directory
	// holding the header database.
	headersDbName = "headers"

	// statusInterval is how often the network status is logged while the
	// daemon runs.
	statusInterval = 30 * time.Second

	// reconnectInterval is how long to wait before redialing a failed
	// peer connection.
	reconnectInterval = 10 * time.Second
)

// cfg is the loaded configuration.  It is set in intMain before anything
// else runs.
var cfg *config

// intMain is the real main function for intspvd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func intMain() error {
	// Load configuration and parse command line.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	// Initialize logging and setup deferred flushing to ensure the log
	// rotator gets closed on shutdown.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	defer logRotator.Close()

	intdLog.Infof("Version %s", version())

	// Load the header database.  The leveldb store keeps the main chain
	// across restarts so only new headers are fetched on the next run.
	dbPath := filepath.Join(cfg.DataDir, headersDbName)
	intdLog.Infof("Loading header database from '%s'", dbPath)
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		intdLog.Errorf("%v", err)
		return err
	}
	store, err := storage.OpenLevelDBStore(dbPath)
	if err != nil {
		intdLog.Errorf("%v", err)
		return err
	}
	defer store.Close()

	chain, err := blockchain.New(&blockchain.Config{
		Store:      store,
		Params:     cfg.params,
		TimeSource: time.Now,
	})
	if err != nil {
		intdLog.Errorf("%v", err)
		return err
	}
	best := chain.BestSnapshot()
	intdLog.Infof("Header chain loaded (height %d, hash %v)", best.Height,
		best.Hash)

	// The wallet view tracks balances and history for the watched
	// addresses and is fed from the sync manager event stream.
	view := wallet.NewView(cfg.params)
	for _, addr := range cfg.WatchAddrs {
		if err := view.WatchAddress(addr); err != nil {
			intdLog.Errorf("%v", err)
			return err
		}
	}

	manager, err := spv.New(&spv.Config{
		Chain:             chain,
		Params:            cfg.params,
		Watched:           view.WatchedItems(),
		FalsePositiveRate: cfg.FPRate,
	})
	if err != nil {
		intdLog.Errorf("%v", err)
		return err
	}
	manager.Start()
	defer func() {
		intdLog.Infof("Gracefully shutting down the sync manager...")
		if err := manager.Stop(); err != nil {
			intdLog.Errorf("%v", err)
		}
	}()

	// Pump sync events into the wallet view.
	go func() {
		for event := range manager.Events() {
			view.ApplyEvent(event)
			logSyncEvent(event)
		}
	}()

	// The request server is what a bound mobile frontend would call.  The
	// daemon uses it to report network status while running.
	server := mobilerpc.NewServer(chain, manager, view, nil)

	// Dial the configured peers.  Each connection redials on failure
	// until shutdown.
	quit := make(chan struct{})
	for _, addr := range cfg.ConnectPeers {
		go connectHandler(addr, chain, manager, quit)
	}

	go statusHandler(server, quit)

	// Block until a SIGINT or SIGTERM is received, then tear everything
	// down in the deferred calls above.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	intdLog.Infof("Received signal, shutting down...")
	close(quit)
	return nil
}

// connectHandler maintains a connection to the given address, redialing
// whenever the peer disconnects, until quit is closed.
func connectHandler(addr string, chain *blockchain.HeaderChain,
	manager *spv.SyncManager, quit chan struct{}) {

	for {
		sp, err := newServerPeer(addr, chain, manager, cfg.params)
		if err != nil {
			peerLog.Errorf("Can't connect to %s: %v", addr, err)
		} else {
			sp.WaitForShutdown()
		}

		select {
		case <-quit:
			if sp != nil {
				sp.Disconnect()
			}
			return
		case <-time.After(reconnectInterval):
		}
	}
}

// statusHandler periodically logs the network status until quit is closed.
func statusHandler(server *mobilerpc.Server, quit chan struct{}) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := server.GetNetworkStatus()
			if err != nil {
				intdLog.Errorf("Can't query network status: %v",
					err)
				continue
			}
			intdLog.Infof("Status: height %d, peers %d, syncing %v "+
				"(%.1f%%)", status.BlockHeight, status.PeerCount,
				status.IsSyncing, status.SyncProgress*100)

		case <-quit:
			return
		}
	}
}

// logSyncEvent writes a log line for notable sync events.
func logSyncEvent(event spv.Event) {
	switch e := event.(type) {
	case spv.ChainReorg:
		intdLog.Warnf("Chain reorganized from height %d to %d (%v)",
			e.OldHeight, e.NewHeight, e.NewHash)

	case spv.TxMatched:
		intdLog.Infof("Matched transaction %v in block %v (height %d)",
			e.TxHash, e.BlockHash, e.BlockHeight)

	case spv.SyncCompleted:
		intdLog.Infof("Sync complete at height %d (%v)", e.Height,
			e.Hash)
	}
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit()
	if err := intMain(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}
