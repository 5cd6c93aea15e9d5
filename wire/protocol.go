// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
)

// ProtocolVersion is the latest protocol version this package supports.
const ProtocolVersion uint32 = 1

// IntNet represents which INT network a message belongs to.
type IntNet uint32

// Constants used to indicate the INT network a message applies to.  They are
// the first four bytes of every framed message and keep networks from
// accidentally talking to each other.
const (
	// MainNet represents the main INT network.
	MainNet IntNet = 0xd1b2c3a4

	// TestNet represents the INT test network.
	TestNet IntNet = 0xd1b2c3b5

	// SimNet represents the simulation test network.
	SimNet IntNet = 0x12141c16
)

// intNetStrings is a map of INT networks back to their constant names for
// pretty printing.
var intNetStrings = map[IntNet]string{
	MainNet: "MainNet",
	TestNet: "TestNet",
	SimNet:  "SimNet",
}

// String returns the IntNet in human-readable form.
func (n IntNet) String() string {
	if s, ok := intNetStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown IntNet (%d)", uint32(n))
}
