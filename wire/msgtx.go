// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// TxVersion is the current latest supported transaction version.
	TxVersion = 1

	// defaultTxInOutAlloc is the default size used for the backing array
	// for transaction inputs and outputs.  The array will dynamically grow
	// as needed, but this figure is intended to cover the vast majority of
	// transactions without needing to grow the backing array multiple
	// times.
	defaultTxInOutAlloc = 8

	// maxScriptSize is the maximum allowed length of a raw script.
	maxScriptSize = 10000

	// minTxInPayload is the minimum payload size for a transaction input.
	// PreviousOutPoint.Hash + PreviousOutPoint.Index 4 bytes + varint for
	// SignatureScript length 1 byte + Sequence 4 bytes.
	minTxInPayload = 9 + chainhash.HashSize

	// maxTxInPerMessage is the maximum number of transaction inputs that
	// could possibly fit into a message.
	maxTxInPerMessage = (MaxMessagePayload / minTxInPayload) + 1

	// minTxOutPayload is the minimum payload size for a transaction output.
	// Value 8 bytes + varint for PkScript length 1 byte.
	minTxOutPayload = 9

	// maxTxOutPerMessage is the maximum number of transaction outputs that
	// could possibly fit into a message.
	maxTxOutPerMessage = (MaxMessagePayload / minTxOutPayload) + 1
)

// OutPoint defines an INT data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new INT transaction outpoint point with the provided
// hash and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{
		Hash:  *hash,
		Index: index,
	}
}

// String returns the OutPoint in the human-readable form "hash:index".
func (o OutPoint) String() string {
	return fmt.Sprintf("%v:%d", o.Hash, o.Index)
}

// TxIn defines an INT transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// NewTxIn returns a new INT transaction input with the provided previous
// outpoint point and signature script with a default sequence of MaxTxInSequenceNum.
func NewTxIn(prevOut *OutPoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         0xffffffff,
	}
}

// TxOut defines an INT transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// NewTxOut returns a new INT transaction output with the provided
// transaction value and public key script.
func NewTxOut(value int64, pkScript []byte) *TxOut {
	return &TxOut{
		Value:    value,
		PkScript: pkScript,
	}
}

// MsgTx implements the Message interface and represents an INT tx message.
// It is used to deliver transaction information in response to a getdata
// message for a given transaction, and to broadcast raw transactions.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// TxHash generates the hash for the transaction.
func (msg *MsgTx) TxHash() chainhash.Hash {
	// Encode the transaction and calculate double sha256 on the result.
	// Ignore the error returns since the only way the encode could fail
	// is being out of memory or due to nil pointers, both of which would
	// cause a run-time panic.
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	_ = msg.Serialize(buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// IntDecode decodes r using the INT protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgTx) IntDecode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.Version)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > uint64(maxTxInPerMessage) {
		str := fmt.Sprintf("too many input transactions to fit into "+
			"max message size [count %d, max %d]", count,
			maxTxInPerMessage)
		return messageError("MsgTx.IntDecode", str)
	}

	msg.TxIn = make([]*TxIn, 0, count)
	for i := uint64(0); i < count; i++ {
		ti := TxIn{}
		err := readElements(r, &ti.PreviousOutPoint.Hash,
			&ti.PreviousOutPoint.Index)
		if err != nil {
			return err
		}
		ti.SignatureScript, err = ReadVarBytes(r, pver, maxScriptSize,
			"transaction input signature script")
		if err != nil {
			return err
		}
		err = readElement(r, &ti.Sequence)
		if err != nil {
			return err
		}
		msg.TxIn = append(msg.TxIn, &ti)
	}

	count, err = ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > uint64(maxTxOutPerMessage) {
		str := fmt.Sprintf("too many output transactions to fit into "+
			"max message size [count %d, max %d]", count,
			maxTxOutPerMessage)
		return messageError("MsgTx.IntDecode", str)
	}

	msg.TxOut = make([]*TxOut, 0, count)
	for i := uint64(0); i < count; i++ {
		to := TxOut{}
		err := readElement(r, &to.Value)
		if err != nil {
			return err
		}
		to.PkScript, err = ReadVarBytes(r, pver, maxScriptSize,
			"transaction output public key script")
		if err != nil {
			return err
		}
		msg.TxOut = append(msg.TxOut, &to)
	}

	return readElement(r, &msg.LockTime)
}

// IntEncode encodes the receiver to w using the INT protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgTx) IntEncode(w io.Writer, pver uint32) error {
	err := writeElement(w, msg.Version)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, pver, uint64(len(msg.TxIn)))
	if err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		err := writeElements(w, &ti.PreviousOutPoint.Hash,
			ti.PreviousOutPoint.Index)
		if err != nil {
			return err
		}
		err = WriteVarBytes(w, pver, ti.SignatureScript)
		if err != nil {
			return err
		}
		err = writeElement(w, ti.Sequence)
		if err != nil {
			return err
		}
	}

	err = WriteVarInt(w, pver, uint64(len(msg.TxOut)))
	if err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		err := writeElement(w, to.Value)
		if err != nil {
			return err
		}
		err = WriteVarBytes(w, pver, to.PkScript)
		if err != nil {
			return err
		}
	}

	return writeElement(w, msg.LockTime)
}

// Serialize encodes the transaction to w using a format that is suitable for
// long-term storage such as a database.  The wire encoding and the storage
// format are currently identical.
func (msg *MsgTx) Serialize(w io.Writer) error {
	return msg.IntEncode(w, 0)
}

// Deserialize decodes a transaction from r into the receiver using the
// long-term storage format.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	return msg.IntDecode(r, 0)
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction.
func (msg *MsgTx) SerializeSize() int {
	// Version 4 bytes + LockTime 4 bytes + serialized varint size for the
	// number of transaction inputs and outputs.
	n := 8 + VarIntSerializeSize(uint64(len(msg.TxIn))) +
		VarIntSerializeSize(uint64(len(msg.TxOut)))

	for _, txIn := range msg.TxIn {
		n += 8 + chainhash.HashSize +
			VarIntSerializeSize(uint64(len(txIn.SignatureScript))) +
			len(txIn.SignatureScript)
	}
	for _, txOut := range msg.TxOut {
		n += 8 + VarIntSerializeSize(uint64(len(txOut.PkScript))) +
			len(txOut.PkScript)
	}

	return n
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgTx) Command() string {
	return CmdTx
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgTx) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// NewMsgTx returns a new INT tx message that conforms to the Message
// interface.  The return instance has a default version of TxVersion and
// there are no transaction inputs or outputs.  Also, the lock time is set to
// zero to indicate the transaction is valid immediately as opposed to some
// time in the future.
func NewMsgTx() *MsgTx {
	return &MsgTx{
		Version: TxVersion,
		TxIn:    make([]*TxIn, 0, defaultTxInOutAlloc),
		TxOut:   make([]*TxOut, 0, defaultTxInOutAlloc),
	}
}
