// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mobilerpc exposes the in-process request/response surface consumed
// by the platform bindings.  The structs carry JSON tags because the
// bindings serialize them across the language boundary.
package mobilerpc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/blockchain"
	"github.com/INT-devs/mobile-wallets/fees"
	"github.com/INT-devs/mobile-wallets/spv"
	"github.com/INT-devs/mobile-wallets/wallet"
	"github.com/INT-devs/mobile-wallets/wire"
)

// estimatedSecondsPerBlock is the advertised confirmation latency for an
// accepted transaction, matching the network's block interval.
const estimatedSecondsPerBlock = 300

// maxSyncHeaders caps the number of headers one Sync response carries.
const maxSyncHeaders = wire.MaxHeadersPerMsg

// SyncRequest asks for headers after the last block the caller knows.
type SyncRequest struct {
	LastKnownBlockHash string `json:"lastKnownBlockHash"`
	MaxHeaders         int    `json:"maxHeaders"`
}

// SyncResponse carries the requested headers and the current tip.
type SyncResponse struct {
	Headers      []string `json:"headers"`
	BestHeight   int32    `json:"bestHeight"`
	BestHash     string   `json:"bestHash"`
	FeeRatePerKB int64    `json:"feeRatePerKB"`
}

// BalanceRequest asks for the balance of one watched address.
type BalanceRequest struct {
	Address          string `json:"address"`
	MinConfirmations int32  `json:"minConfirmations"`
}

// BalanceResponse summarizes the funds of the requested address.
type BalanceResponse struct {
	ConfirmedBalance   int64 `json:"confirmedBalance"`
	UnconfirmedBalance int64 `json:"unconfirmedBalance"`
	TotalBalance       int64 `json:"totalBalance"`
	UTXOCount          int   `json:"utxoCount"`
}

// UTXORequest asks for the unspent outputs of one watched address.
type UTXORequest struct {
	Address          string `json:"address"`
	MinConfirmations int32  `json:"minConfirmations"`
}

// UTXOInfo describes a single unspent output.
type UTXOInfo struct {
	TxHash        string `json:"txHash"`
	OutputIndex   uint32 `json:"outputIndex"`
	Amount        int64  `json:"amount"`
	Confirmations int32  `json:"confirmations"`
}

// UTXOResponse carries the unspent outputs of the requested address.
type UTXOResponse struct {
	UTXOs       []UTXOInfo `json:"utxos"`
	TotalAmount int64      `json:"totalAmount"`
}

// HistoryRequest asks for one page of an address's history.
type HistoryRequest struct {
	Address  string `json:"address"`
	PageSize int    `json:"pageSize"`
	Page     int    `json:"page"`
}

// HistoryEntryInfo describes one credit or debit of the address.
type HistoryEntryInfo struct {
	TxHash        string `json:"txHash"`
	Amount        int64  `json:"amount"`
	Incoming      bool   `json:"incoming"`
	BlockHeight   int32  `json:"blockHeight"`
	Confirmations int32  `json:"confirmations"`
}

// HistoryResponse is one page of history entries.
type HistoryResponse struct {
	Entries    []HistoryEntryInfo `json:"entries"`
	TotalCount int                `json:"totalCount"`
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
}

// SendTransactionRequest carries a hex-serialized raw transaction.
type SendTransactionRequest struct {
	RawTransaction string `json:"rawTransaction"`
}

// SendTransactionResponse reports the broadcast outcome.
type SendTransactionResponse struct {
	Accepted                     bool   `json:"accepted"`
	TxHash                       string `json:"txHash"`
	Error                        string `json:"error,omitempty"`
	EstimatedConfirmationSeconds int    `json:"estimatedConfirmationSeconds"`
}

// FeeEstimateRequest asks for the fee of a transaction of the given size
// confirming within the given number of blocks.
type FeeEstimateRequest struct {
	TransactionSizeBytes int `json:"transactionSizeBytes"`
	TargetBlocks         int `json:"targetBlocks"`
}

// FeeEstimateResponse carries the fee estimate.
type FeeEstimateResponse struct {
	FeeRatePerKB int64   `json:"feeRatePerKB"`
	EstimatedFee int64   `json:"estimatedFee"`
	Confidence   float64 `json:"confidence"`
}

// NetworkStatus reports the sync session state.
type NetworkStatus struct {
	BlockHeight  int32   `json:"blockHeight"`
	BlockHash    string  `json:"blockHash"`
	IsSyncing    bool    `json:"isSyncing"`
	SyncProgress float64 `json:"syncProgress"`
	PeerCount    int     `json:"peerCount"`
}

// Server answers wallet requests from the platform bindings.  It only ever
// reads the chain and view; all mutation flows through the sync manager.
type Server struct {
	chain     *blockchain.HeaderChain
	manager   *spv.SyncManager
	view      *wallet.View
	estimator fees.Estimator
}

// NewServer returns a request server over the given components.  The
// estimator may be nil, in which case the static tier table is used.
func NewServer(chain *blockchain.HeaderChain, manager *spv.SyncManager,
	view *wallet.View, estimator fees.Estimator) *Server {

	if estimator == nil {
		estimator = fees.NewStaticEstimator()
	}
	return &Server{
		chain:     chain,
		manager:   manager,
		view:      view,
		estimator: estimator,
	}
}

// Sync returns the main chain headers after the caller's last known block,
// or from genesis when the hash is unknown or empty.
func (s *Server) Sync(req *SyncRequest) (*SyncResponse, error) {
	best := s.chain.BestSnapshot()

	startHeight := int32(0)
	if req.LastKnownBlockHash != "" {
		hash, err := chainhashFromStr(req.LastKnownBlockHash)
		if err != nil {
			return nil, walletError(ErrInvalidRequest,
				"malformed lastKnownBlockHash")
		}
		if _, height, err := s.chain.HeaderByHash(hash); err == nil {
			startHeight = height + 1
		}
	}

	maxHeaders := req.MaxHeaders
	if maxHeaders <= 0 || maxHeaders > maxSyncHeaders {
		maxHeaders = maxSyncHeaders
	}

	estimate, err := s.estimator.EstimateFee(1000, 6)
	if err != nil {
		return nil, err
	}

	resp := &SyncResponse{
		BestHeight:   best.Height,
		BestHash:     best.Hash.String(),
		FeeRatePerKB: int64(estimate.FeeRatePerKB),
	}
	for height := startHeight; height <= best.Height; height++ {
		if len(resp.Headers) >= maxHeaders {
			break
		}
		header, err := s.chain.HeaderByHeight(height)
		if err != nil {
			break
		}
		serialized, err := header.Bytes()
		if err != nil {
			return nil, err
		}
		resp.Headers = append(resp.Headers, hex.EncodeToString(serialized))
	}
	return resp, nil
}

// GetBalance returns the balance of a watched address.
func (s *Server) GetBalance(req *BalanceRequest) (*BalanceResponse, error) {
	if s.view == nil {
		return nil, walletError(ErrWalletNotAvailable, "wallet not available")
	}

	balance, err := s.view.Balance(req.Address, req.MinConfirmations)
	if err != nil {
		return nil, walletError(ErrInvalidAddress, err.Error())
	}
	return &BalanceResponse{
		ConfirmedBalance:   int64(balance.Confirmed),
		UnconfirmedBalance: int64(balance.Unconfirmed),
		TotalBalance:       int64(balance.Total),
		UTXOCount:          balance.UTXOCount,
	}, nil
}

// GetUTXOs returns the unspent outputs of a watched address with at least
// the requested number of confirmations.
func (s *Server) GetUTXOs(req *UTXORequest) (*UTXOResponse, error) {
	if s.view == nil {
		return nil, walletError(ErrWalletNotAvailable, "wallet not available")
	}

	utxos, total, err := s.view.UTXOs(req.Address, req.MinConfirmations)
	if err != nil {
		return nil, walletError(ErrInvalidAddress, err.Error())
	}

	bestHeight := s.view.BestHeight()
	resp := &UTXOResponse{TotalAmount: int64(total)}
	for _, utxo := range utxos {
		resp.UTXOs = append(resp.UTXOs, UTXOInfo{
			TxHash:        utxo.OutPoint.Hash.String(),
			OutputIndex:   utxo.OutPoint.Index,
			Amount:        int64(utxo.Amount),
			Confirmations: confirmations(utxo.BlockHeight, bestHeight),
		})
	}
	return resp, nil
}

// GetHistory returns one page of a watched address's history.
func (s *Server) GetHistory(req *HistoryRequest) (*HistoryResponse, error) {
	if s.view == nil {
		return nil, walletError(ErrWalletNotAvailable, "wallet not available")
	}

	page, err := s.view.History(req.Address, req.Page, req.PageSize)
	if err != nil {
		if err == wallet.ErrInvalidPage {
			return nil, walletError(ErrInvalidRequest, err.Error())
		}
		return nil, walletError(ErrInvalidAddress, err.Error())
	}

	bestHeight := s.view.BestHeight()
	resp := &HistoryResponse{
		TotalCount: page.TotalCount,
		Page:       page.Page,
		TotalPages: page.TotalPages,
	}
	for _, entry := range page.Entries {
		resp.Entries = append(resp.Entries, HistoryEntryInfo{
			TxHash:        entry.TxHash.String(),
			Amount:        int64(entry.Amount),
			Incoming:      entry.Incoming,
			BlockHeight:   entry.BlockHeight,
			Confirmations: confirmations(entry.BlockHeight, bestHeight),
		})
	}
	return resp, nil
}

// SendTransaction decodes and broadcasts a raw transaction via the
// connected peers.  Broadcast failures are reported in the response rather
// than as an error so the bindings always receive the decoded hash.
func (s *Server) SendTransaction(req *SendTransactionRequest) (*SendTransactionResponse, error) {
	rawTx, err := hex.DecodeString(req.RawTransaction)
	if err != nil {
		return nil, walletError(ErrInvalidRequest,
			"rawTransaction is not valid hex")
	}

	var tx wire.MsgTx
	if err := tx.IntDecode(bytes.NewReader(rawTx), wire.ProtocolVersion); err != nil {
		return nil, walletError(ErrInvalidRequest,
			fmt.Sprintf("undecodable transaction: %v", err))
	}
	txHash := tx.TxHash()

	resp := &SendTransactionResponse{
		TxHash:                       txHash.String(),
		EstimatedConfirmationSeconds: estimatedSecondsPerBlock,
	}
	if s.manager == nil {
		resp.Error = "no sync session"
		return resp, nil
	}
	if err := s.manager.BroadcastTx(&tx); err != nil {
		resp.Error = err.Error()
		return resp, nil
	}
	resp.Accepted = true
	return resp, nil
}

// EstimateFee returns the fee estimate for the requested size and target.
func (s *Server) EstimateFee(req *FeeEstimateRequest) (*FeeEstimateResponse, error) {
	estimate, err := s.estimator.EstimateFee(req.TransactionSizeBytes,
		req.TargetBlocks)
	if err != nil {
		return nil, walletError(ErrInvalidRequest, err.Error())
	}
	return &FeeEstimateResponse{
		FeeRatePerKB: int64(estimate.FeeRatePerKB),
		EstimatedFee: int64(estimate.Fee),
		Confidence:   estimate.Confidence,
	}, nil
}

// GetNetworkStatus reports the current chain tip and sync session state.
func (s *Server) GetNetworkStatus() (*NetworkStatus, error) {
	best := s.chain.BestSnapshot()
	status := &NetworkStatus{
		BlockHeight: best.Height,
		BlockHash:   best.Hash.String(),
	}
	if s.manager != nil {
		progress := s.manager.Progress()
		status.PeerCount = progress.PeerCount
		status.IsSyncing = progress.State == spv.StateAwaitingHeaders ||
			progress.State == spv.StateAwaitingFilteredBlocks
		if progress.TargetHeight > 0 {
			frac := float64(progress.BestHeight) /
				float64(progress.TargetHeight)
			if frac > 1 {
				frac = 1
			}
			status.SyncProgress = frac
		} else if progress.State == spv.StateSynced {
			status.SyncProgress = 1
		}
	}
	return status, nil
}

// confirmations computes the confirmation count for an entry height given
// the best height.  Unconfirmed entries have zero confirmations.
func confirmations(height, bestHeight int32) int32 {
	if height == 0 || height > bestHeight {
		return 0
	}
	return bestHeight - height + 1
}

// chainhashFromStr parses a big-endian hex hash string.
func chainhashFromStr(s string) (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(s)
}
