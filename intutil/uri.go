// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package intutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/INT-devs/mobile-wallets/chaincfg"
)

// ErrInvalidURI is returned when a payment URI cannot be parsed.
var ErrInvalidURI = errors.New("invalid payment URI")

// PaymentURI describes the contents of a payment request URI, typically
// carried in a QR code.
type PaymentURI struct {
	Address string
	Amount  Amount
	Label   string
	Message string
}

// EncodePaymentURI generates a payment URI of the form
// intcoin:<address>[?amount=<INT>&label=<label>&message=<message>] for the
// given network.  The amount parameter is formatted in INT with six decimal
// places and omitted when zero.
func EncodePaymentURI(u *PaymentURI, params *chaincfg.Params) (string, error) {
	if !IsValidAddress(u.Address, params) {
		return "", ErrInvalidAddress
	}

	var builder strings.Builder
	builder.WriteString(params.URIScheme)
	builder.WriteByte(':')
	builder.WriteString(u.Address)

	query := url.Values{}
	if u.Amount > 0 {
		query.Set("amount", u.Amount.decimalString())
	}
	if u.Label != "" {
		query.Set("label", u.Label)
	}
	if u.Message != "" {
		query.Set("message", u.Message)
	}
	if encoded := query.Encode(); encoded != "" {
		builder.WriteByte('?')
		builder.WriteString(encoded)
	}
	return builder.String(), nil
}

// ParsePaymentURI parses a payment URI for the given network and validates
// the address it carries.
func ParsePaymentURI(uri string, params *chaincfg.Params) (*PaymentURI, error) {
	prefix := params.URIScheme + ":"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("%w: missing %q scheme", ErrInvalidURI,
			params.URIScheme)
	}
	rest := uri[len(prefix):]

	address := rest
	var rawQuery string
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		address = rest[:idx]
		rawQuery = rest[idx+1:]
	}
	if !IsValidAddress(address, params) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, ErrInvalidAddress)
	}

	parsed := &PaymentURI{Address: address}
	if rawQuery == "" {
		return parsed, nil
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if amountStr := query.Get("amount"); amountStr != "" {
		amount, err := ParseAmount(amountStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		parsed.Amount = amount
	}
	parsed.Label = query.Get("label")
	parsed.Message = query.Get("message")
	return parsed, nil
}
