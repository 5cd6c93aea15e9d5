// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet maintains a read-only projection of the wallet-visible
// chain state: watched items, unspent outputs, and transaction history.  It
// consumes sync events and never drives the network itself.
package wallet

import (
	"bytes"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/chaincfg"
	"github.com/INT-devs/mobile-wallets/intutil"
	"github.com/INT-devs/mobile-wallets/spv"
	"github.com/INT-devs/mobile-wallets/wire"
)

var (
	// ErrUnknownAddress is returned when a query names an address the
	// view is not watching.
	ErrUnknownAddress = errors.New("address is not watched")

	// ErrInvalidPage is returned for history requests with a
	// non-positive page size or negative page number.
	ErrInvalidPage = errors.New("invalid history page parameters")
)

// UTXO is an unspent transaction output credited to a watched address.
type UTXO struct {
	OutPoint    wire.OutPoint
	Amount      intutil.Amount
	PkScript    []byte
	Address     string
	BlockHeight int32
	BlockHash   chainhash.Hash
}

// HistoryEntry records a single credit or debit of a watched address.
type HistoryEntry struct {
	TxHash      chainhash.Hash
	Address     string
	Amount      intutil.Amount
	Incoming    bool
	BlockHeight int32
	BlockHash   chainhash.Hash
}

// Balance summarizes the funds of one watched address.
type Balance struct {
	Confirmed   intutil.Amount
	Unconfirmed intutil.Amount
	Total       intutil.Amount
	UTXOCount   int
}

// HistoryPage is one page of a paginated history query.
type HistoryPage struct {
	Entries    []HistoryEntry
	TotalCount int
	Page       int
	TotalPages int
}

// watchedAddress associates an address string with the script fragment the
// bloom filter and output matching use.
type watchedAddress struct {
	address string
	program []byte
}

// View is an address-indexed projection of UTXOs and history driven by sync
// events.  All exported methods are safe for concurrent access; ApplyEvent
// calls must be serialized by the caller, which the single event channel of
// the sync manager already guarantees.
type View struct {
	mtx    sync.RWMutex
	params *chaincfg.Params

	bestHeight int32
	bestHash   chainhash.Hash

	watched map[string]*watchedAddress
	utxos   map[wire.OutPoint]*UTXO
	history []*HistoryEntry
}

// NewView returns an empty view for the given network.
func NewView(params *chaincfg.Params) *View {
	return &View{
		params:  params,
		watched: make(map[string]*watchedAddress),
		utxos:   make(map[wire.OutPoint]*UTXO),
	}
}

// WatchAddress adds the given address to the watched set.  The address is
// validated against the view's network.
func (v *View) WatchAddress(address string) error {
	decoded, err := intutil.DecodeAddress(address, v.params)
	if err != nil {
		return err
	}

	v.mtx.Lock()
	v.watched[address] = &watchedAddress{
		address: address,
		program: decoded.Program(),
	}
	v.mtx.Unlock()
	return nil
}

// WatchedItems returns the script fragments of every watched address, which
// is the set the sync manager loads into the bloom filter.
func (v *View) WatchedItems() [][]byte {
	v.mtx.RLock()
	defer v.mtx.RUnlock()

	items := make([][]byte, 0, len(v.watched))
	for _, w := range v.watched {
		program := make([]byte, len(w.program))
		copy(program, w.program)
		items = append(items, program)
	}
	return items
}

// IsWatched returns whether the given address is in the watched set.
func (v *View) IsWatched(address string) bool {
	v.mtx.RLock()
	_, ok := v.watched[address]
	v.mtx.RUnlock()
	return ok
}

// BestHeight returns the view's notion of the current best chain height.
func (v *View) BestHeight() int32 {
	v.mtx.RLock()
	height := v.bestHeight
	v.mtx.RUnlock()
	return height
}

// ApplyEvent folds one sync event into the view.
func (v *View) ApplyEvent(event spv.Event) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	switch e := event.(type) {
	case spv.HeaderAccepted:
		if e.Height > v.bestHeight {
			v.bestHeight = e.Height
			v.bestHash = e.Hash
		}

	case spv.ChainReorg:
		v.handleReorg(&e)

	case spv.TxMatched:
		v.handleMatchedTx(&e)

	case spv.SyncCompleted:
		if e.Height > v.bestHeight {
			v.bestHeight = e.Height
			v.bestHash = e.Hash
		}
	}
}

// handleReorg marks every entry confirmed at a detached height as
// unconfirmed again.  The transactions may confirm again in an attached
// block, in which case a later TxMatched event restores their height.
//
// This function MUST be called with the view lock held (for writes).
func (v *View) handleReorg(e *spv.ChainReorg) {
	forkHeight := e.NewHeight - int32(len(e.AttachedHashes))
	for _, utxo := range v.utxos {
		if utxo.BlockHeight > forkHeight {
			utxo.BlockHeight = 0
			utxo.BlockHash = chainhash.Hash{}
		}
	}
	for _, entry := range v.history {
		if entry.BlockHeight > forkHeight {
			entry.BlockHeight = 0
			entry.BlockHash = chainhash.Hash{}
		}
	}
	v.bestHeight = e.NewHeight
	v.bestHash = e.NewHash
}

// handleMatchedTx credits watched outputs and debits spent ones.
//
// This function MUST be called with the view lock held (for writes).
func (v *View) handleMatchedTx(e *spv.TxMatched) {
	// Debit inputs that spend outputs the view tracks.
	for _, txIn := range e.Tx.TxIn {
		utxo, ok := v.utxos[txIn.PreviousOutPoint]
		if !ok {
			continue
		}
		delete(v.utxos, txIn.PreviousOutPoint)
		v.history = append(v.history, &HistoryEntry{
			TxHash:      e.TxHash,
			Address:     utxo.Address,
			Amount:      utxo.Amount,
			Incoming:    false,
			BlockHeight: e.BlockHeight,
			BlockHash:   e.BlockHash,
		})
	}

	// Credit outputs paying to a watched script fragment.
	for i, txOut := range e.Tx.TxOut {
		w := v.matchWatched(txOut.PkScript)
		if w == nil {
			continue
		}

		outpoint := wire.OutPoint{Hash: e.TxHash, Index: uint32(i)}
		if existing, ok := v.utxos[outpoint]; ok {
			// Already known, typically an unconfirmed output now
			// confirmed by a merkle proof.  Update its position
			// and the matching history entry.
			existing.BlockHeight = e.BlockHeight
			existing.BlockHash = e.BlockHash
			for _, entry := range v.history {
				if entry.TxHash == e.TxHash &&
					entry.Address == w.address &&
					entry.Incoming {

					entry.BlockHeight = e.BlockHeight
					entry.BlockHash = e.BlockHash
				}
			}
			continue
		}

		v.utxos[outpoint] = &UTXO{
			OutPoint:    outpoint,
			Amount:      intutil.Amount(txOut.Value),
			PkScript:    txOut.PkScript,
			Address:     w.address,
			BlockHeight: e.BlockHeight,
			BlockHash:   e.BlockHash,
		}
		v.history = append(v.history, &HistoryEntry{
			TxHash:      e.TxHash,
			Address:     w.address,
			Amount:      intutil.Amount(txOut.Value),
			Incoming:    true,
			BlockHeight: e.BlockHeight,
			BlockHash:   e.BlockHash,
		})
	}
}

// matchWatched returns the watched address whose script fragment appears in
// the given output script, or nil.
//
// This function MUST be called with the view lock held (for reads).
func (v *View) matchWatched(pkScript []byte) *watchedAddress {
	for _, w := range v.watched {
		if len(w.program) > 0 && bytes.Contains(pkScript, w.program) {
			return w
		}
	}
	return nil
}

// confirmations computes the confirmation count of an entry at the given
// height.  Unconfirmed entries and entries above the best height have zero
// confirmations.
//
// This function MUST be called with the view lock held (for reads).
func (v *View) confirmations(height int32) int32 {
	if height == 0 || height > v.bestHeight {
		return 0
	}
	return v.bestHeight - height + 1
}

// Balance returns the balance summary for a watched address.  Only UTXOs
// with at least minConf confirmations count as confirmed.
func (v *View) Balance(address string, minConf int32) (*Balance, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()

	if _, ok := v.watched[address]; !ok {
		return nil, ErrUnknownAddress
	}
	if minConf < 1 {
		minConf = 1
	}

	var balance Balance
	for _, utxo := range v.utxos {
		if utxo.Address != address {
			continue
		}
		balance.UTXOCount++
		balance.Total += utxo.Amount
		if v.confirmations(utxo.BlockHeight) >= minConf {
			balance.Confirmed += utxo.Amount
		} else {
			balance.Unconfirmed += utxo.Amount
		}
	}
	return &balance, nil
}

// UTXOs returns the unspent outputs of a watched address with at least
// minConf confirmations along with their total amount.
func (v *View) UTXOs(address string, minConf int32) ([]UTXO, intutil.Amount, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()

	if _, ok := v.watched[address]; !ok {
		return nil, 0, ErrUnknownAddress
	}

	var total intutil.Amount
	var utxos []UTXO
	for _, utxo := range v.utxos {
		if utxo.Address != address {
			continue
		}
		if v.confirmations(utxo.BlockHeight) < minConf {
			continue
		}
		utxos = append(utxos, *utxo)
		total += utxo.Amount
	}
	return utxos, total, nil
}

// History returns one page of the history of a watched address.  Entries
// are ordered oldest first and pages are zero-based with
// startIndex = page * pageSize.
func (v *View) History(address string, page, pageSize int) (*HistoryPage, error) {
	if pageSize <= 0 || page < 0 {
		return nil, ErrInvalidPage
	}

	v.mtx.RLock()
	defer v.mtx.RUnlock()

	if _, ok := v.watched[address]; !ok {
		return nil, ErrUnknownAddress
	}

	var matched []*HistoryEntry
	for _, entry := range v.history {
		if entry.Address == address {
			matched = append(matched, entry)
		}
	}

	totalCount := len(matched)
	totalPages := (totalCount + pageSize - 1) / pageSize

	result := &HistoryPage{
		TotalCount: totalCount,
		Page:       page,
		TotalPages: totalPages,
	}
	startIndex := page * pageSize
	if startIndex >= totalCount {
		return result, nil
	}
	end := startIndex + pageSize
	if end > totalCount {
		end = totalCount
	}
	for _, entry := range matched[startIndex:end] {
		result.Entries = append(result.Entries, *entry)
	}
	return result, nil
}
