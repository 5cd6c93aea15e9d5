// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fees provides transaction fee estimation for INT wallets.
package fees

import (
	"errors"

	"github.com/INT-devs/mobile-wallets/intutil"
)

// MinRelayFee is the minimum fee in base units a transaction must carry to
// be relayed.
const MinRelayFee = intutil.Amount(1000)

// ErrInvalidSize is returned when an estimate is requested for a zero-size
// transaction.
var ErrInvalidSize = errors.New("transaction size must be greater than zero")

// Estimate describes the fee required to confirm a transaction within the
// requested number of blocks.
type Estimate struct {
	// FeeRatePerKB is the fee rate in base units per 1000 bytes.
	FeeRatePerKB intutil.Amount

	// Fee is the total fee for the transaction.
	Fee intutil.Amount

	// Confidence is the estimated probability of confirmation within the
	// target, in [0, 1].
	Confidence float64
}

// Estimator maps a transaction size and confirmation target to a fee.
// Implementations must be deterministic for the same inputs and safe for
// concurrent access.
type Estimator interface {
	// EstimateFee returns the fee estimate for a transaction of the
	// given serialized size confirming within targetBlocks blocks.
	EstimateFee(sizeBytes int, targetBlocks int) (*Estimate, error)
}

// feeTier maps a confirmation target bound to a fee rate and confidence.
type feeTier struct {
	maxTarget  int
	ratePerKB  intutil.Amount
	confidence float64
}

// feeTiers is the static tier table, ordered by target.  Targets beyond the
// last bounded tier fall through to the final entry.
var feeTiers = []feeTier{
	{maxTarget: 2, ratePerKB: 5000, confidence: 0.95},
	{maxTarget: 6, ratePerKB: 2000, confidence: 0.90},
	{maxTarget: 0, ratePerKB: 1000, confidence: 0.80},
}

// StaticEstimator estimates fees from a fixed tier table.  Urgent targets
// (within two blocks) pay a premium rate while patient ones pay the floor.
type StaticEstimator struct{}

// Enforce StaticEstimator implements the Estimator interface.
var _ Estimator = (*StaticEstimator)(nil)

// NewStaticEstimator returns an estimator backed by the static tier table.
func NewStaticEstimator() *StaticEstimator {
	return &StaticEstimator{}
}

// EstimateFee returns the fee estimate for a transaction of the given
// serialized size confirming within targetBlocks blocks.  The total fee is
// the size-proportional rate rounded up to the whole base unit and never
// below MinRelayFee.
//
// This is part of the Estimator interface.
func (e *StaticEstimator) EstimateFee(sizeBytes int, targetBlocks int) (*Estimate, error) {
	if sizeBytes <= 0 {
		return nil, ErrInvalidSize
	}
	if targetBlocks < 1 {
		targetBlocks = 1
	}

	tier := feeTiers[len(feeTiers)-1]
	for _, t := range feeTiers {
		if t.maxTarget != 0 && targetBlocks <= t.maxTarget {
			tier = t
			break
		}
	}

	// fee = ceil(sizeBytes / 1000 * ratePerKB), floored at the minimum
	// relay fee.
	fee := (intutil.Amount(sizeBytes)*tier.ratePerKB + 999) / 1000
	if fee < MinRelayFee {
		fee = MinRelayFee
	}

	return &Estimate{
		FeeRatePerKB: tier.ratePerKB,
		Fee:          fee,
		Confidence:   tier.confidence,
	}, nil
}
