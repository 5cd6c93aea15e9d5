// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package intutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/INT-devs/mobile-wallets/chaincfg"
)

const (
	// minAddressLength and maxAddressLength bound the encoded length of
	// a valid address string.
	minAddressLength = 42
	maxAddressLength = 62
)

// ErrInvalidAddress is returned when an address string fails validation for
// the given network.
var ErrInvalidAddress = errors.New("invalid INT address")

// Address is a decoded bech32 INT address.
type Address struct {
	hrp     string
	version byte
	program []byte
}

// DecodeAddress decodes the string encoding of an address and verifies it is
// valid for the given network.
func DecodeAddress(addr string, params *chaincfg.Params) (*Address, error) {
	if len(addr) < minAddressLength || len(addr) > maxAddressLength {
		return nil, ErrInvalidAddress
	}

	// Bech32 decoding is case insensitive but mixed case is not allowed.
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != params.Bech32HRP {
		return nil, fmt.Errorf("%w: prefix %q is not valid for "+
			"network %s", ErrInvalidAddress, hrp, params.Name)
	}
	if len(data) < 1 {
		return nil, ErrInvalidAddress
	}

	// The first data value is the witness version, the rest is the
	// 5-bit-packed witness program.
	version := data[0]
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(program) < 2 || len(program) > 40 {
		return nil, ErrInvalidAddress
	}

	return &Address{
		hrp:     hrp,
		version: version,
		program: program,
	}, nil
}

// EncodeAddress encodes the passed witness version and program into a bech32
// address for the given network.
func EncodeAddress(version byte, program []byte, params *chaincfg.Params) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := make([]byte, 0, len(converted)+1)
	data = append(data, version)
	data = append(data, converted...)
	return bech32.Encode(params.Bech32HRP, data)
}

// IsValidAddress returns whether the passed address string is a valid INT
// address for the given network.
func IsValidAddress(addr string, params *chaincfg.Params) bool {
	_, err := DecodeAddress(addr, params)
	return err == nil
}

// String returns the bech32 string encoding of the address.
func (a *Address) String() string {
	converted, err := bech32.ConvertBits(a.program, 8, 5, true)
	if err != nil {
		return ""
	}
	data := make([]byte, 0, len(converted)+1)
	data = append(data, a.version)
	data = append(data, converted...)
	encoded, err := bech32.Encode(a.hrp, data)
	if err != nil {
		return ""
	}
	return strings.ToLower(encoded)
}

// Version returns the witness version of the address.
func (a *Address) Version() byte {
	return a.version
}

// Program returns the witness program of the address.  This is the value a
// wallet watches for in output scripts.
func (a *Address) Program() []byte {
	program := make([]byte, len(a.program))
	copy(program, a.program)
	return program
}
