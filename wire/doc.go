// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the INT sync protocol.

The package provides the block header format together with the subset of
protocol messages a lightweight (SPV) client exchanges with full nodes:
header requests and batches, bloom filter loads, filtered (merkle) blocks,
and transaction relay.  The transport that carries the framed messages is
out of scope; ReadMessage and WriteMessage provide the framing for
transports that want it.
*/
package wire
