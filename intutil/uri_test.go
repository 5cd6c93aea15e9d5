// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package intutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/INT-devs/mobile-wallets/chaincfg"
)

// TestPaymentURIRoundTrip tests that encoded payment URIs parse back to the
// same request.
func TestPaymentURIRoundTrip(t *testing.T) {
	params := &chaincfg.MainNetParams
	addr, err := EncodeAddress(0, testProgram(20), params)
	require.NoError(t, err)

	tests := []struct {
		name string
		uri  *PaymentURI
	}{{
		name: "address only",
		uri:  &PaymentURI{Address: addr},
	}, {
		name: "with amount",
		uri:  &PaymentURI{Address: addr, Amount: 1500000},
	}, {
		name: "all fields",
		uri: &PaymentURI{
			Address: addr,
			Amount:  2345678,
			Label:   "Coffee Shop",
			Message: "Order #42 & thanks",
		},
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded, err := EncodePaymentURI(test.uri, params)
			require.NoError(t, err)

			parsed, err := ParsePaymentURI(encoded, params)
			require.NoError(t, err)
			require.Equal(t, test.uri, parsed)
		})
	}
}

// TestEncodePaymentURI tests the exact URI text for a known request.
func TestEncodePaymentURI(t *testing.T) {
	params := &chaincfg.MainNetParams
	addr, err := EncodeAddress(0, testProgram(20), params)
	require.NoError(t, err)

	encoded, err := EncodePaymentURI(&PaymentURI{
		Address: addr,
		Amount:  1500000,
	}, params)
	require.NoError(t, err)
	require.Equal(t, "intcoin:"+addr+"?amount=1.500000", encoded)

	// Zero amounts are omitted entirely.
	encoded, err = EncodePaymentURI(&PaymentURI{Address: addr}, params)
	require.NoError(t, err)
	require.Equal(t, "intcoin:"+addr, encoded)

	// The address must be valid for the network.
	_, err = EncodePaymentURI(&PaymentURI{Address: "int1notanaddress"},
		params)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

// TestParsePaymentURIErrors tests rejection of malformed URIs.
func TestParsePaymentURIErrors(t *testing.T) {
	params := &chaincfg.MainNetParams
	addr, err := EncodeAddress(0, testProgram(20), params)
	require.NoError(t, err)

	tests := []struct {
		name string
		uri  string
	}{
		{"empty", ""},
		{"wrong scheme", "bitcoin:" + addr},
		{"missing scheme", addr},
		{"bad address", "intcoin:int1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"},
		{"bad amount", "intcoin:" + addr + "?amount=abc"},
		{"negative amount", "intcoin:" + addr + "?amount=-1.5"},
		{"malformed query", "intcoin:" + addr + "?amount=%zz"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParsePaymentURI(test.uri, params)
			require.ErrorIs(t, err, ErrInvalidURI)
		})
	}
}
