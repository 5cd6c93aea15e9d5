// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
	"time"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in a
// version message (MsgVersion).
const MaxUserAgentLen = 256

// DefaultUserAgent for wire in the stack.
const DefaultUserAgent = "/intwire:1.0.0/"

// MsgVersion implements the Message interface and represents an INT version
// message.  It is used for a peer to advertise itself as soon as an outbound
// connection is made.  The remote peer then uses this information along with
// its own to negotiate.  The remote peer must then respond with a version
// message of its own containing the negotiation fields as well as a verack
// message (MsgVerAck).
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion int32

	// Time the message was generated.  This is encoded as an int64 on the
	// wire and therefore is limited to 1-second precision.
	Timestamp time.Time

	// Unique value associated with the message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated the message.  This is encoded as a
	// varString on the wire.  This has a max length of MaxUserAgentLen.
	UserAgent string

	// Last block seen by the generator of the version message.
	LastBlock int32
}

// IntDecode decodes r using the INT protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgVersion) IntDecode(r io.Reader, pver uint32) error {
	var timestamp int64
	err := readElements(r, &msg.ProtocolVersion, &timestamp, &msg.Nonce)
	if err != nil {
		return err
	}
	msg.Timestamp = time.Unix(timestamp, 0)

	userAgent, err := ReadVarBytes(r, pver, MaxUserAgentLen,
		"user agent")
	if err != nil {
		return err
	}
	msg.UserAgent = string(userAgent)

	return readElement(r, &msg.LastBlock)
}

// IntEncode encodes the receiver to w using the INT protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgVersion) IntEncode(w io.Writer, pver uint32) error {
	if len(msg.UserAgent) > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %v, max %v]",
			len(msg.UserAgent), MaxUserAgentLen)
		return messageError("MsgVersion.IntEncode", str)
	}

	err := writeElements(w, msg.ProtocolVersion, msg.Timestamp.Unix(),
		msg.Nonce)
	if err != nil {
		return err
	}

	err = WriteVarBytes(w, pver, []byte(msg.UserAgent))
	if err != nil {
		return err
	}

	return writeElement(w, msg.LastBlock)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgVersion) Command() string {
	return CmdVersion
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint32 {
	// Protocol version 4 bytes + timestamp 8 bytes + nonce 8 bytes + max
	// user agent varString + last block 4 bytes.
	return 4 + 8 + 8 + uint32(VarIntSerializeSize(MaxUserAgentLen)) +
		MaxUserAgentLen + 4
}

// NewMsgVersion returns a new INT version message that conforms to the
// Message interface using the passed parameters and defaults for the
// remaining fields.
func NewMsgVersion(nonce uint64, lastBlock int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: int32(ProtocolVersion),
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
	}
}
