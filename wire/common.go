// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MaxVarIntPayload is the maximum payload size for a variable length integer.
const MaxVarIntPayload = 9

// uint32Time represents a unix timestamp encoded with a uint32.  It is used as
// a way to signal the readElement function how to decode a timestamp into a Go
// time.Time since it is otherwise ambiguous.
type uint32Time time.Time

// readElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	// Attempt to read the element based on the concrete type via fast
	// type assertions first.
	switch e := element.(type) {
	case *uint32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint32(buf[:])
		return nil

	case *int32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = int32(binary.LittleEndian.Uint32(buf[:]))
		return nil

	case *uint64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint64(buf[:])
		return nil

	case *int64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = int64(binary.LittleEndian.Uint64(buf[:]))
		return nil

	case *uint8:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = buf[0]
		return nil

	case *chainhash.Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil

	// Unix timestamp encoded as a uint32.
	case *uint32Time:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = uint32Time(time.Unix(int64(binary.LittleEndian.Uint32(buf[:])), 0))
		return nil

	case *BloomUpdateType:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = BloomUpdateType(buf[0])
		return nil

	case *InvType:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = InvType(binary.LittleEndian.Uint32(buf[:]))
		return nil

	case *IntNet:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = IntNet(binary.LittleEndian.Uint32(buf[:]))
		return nil
	}

	// Fall back to the slower binary.Read if a fast path was not available
	// above.
	return binary.Read(r, binary.LittleEndian, element)
}

// readElements reads multiple items from r.  It is equivalent to multiple
// calls to readElement.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case int32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(e))
		_, err := w.Write(buf[:])
		return err

	case uint64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case int64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(e))
		_, err := w.Write(buf[:])
		return err

	case uint8:
		_, err := w.Write([]byte{e})
		return err

	case *chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case BloomUpdateType:
		_, err := w.Write([]byte{byte(e)})
		return err

	case InvType:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(e))
		_, err := w.Write(buf[:])
		return err

	case IntNet:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(e))
		_, err := w.Write(buf[:])
		return err
	}

	return binary.Write(w, binary.LittleEndian, element)
}

// writeElements writes multiple items to w.  It is equivalent to multiple
// calls to writeElement.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64.
func ReadVarInt(r io.Reader, pver uint32) (uint64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}

	var rv uint64
	discriminant := b[0]
	switch discriminant {
	case 0xff:
		var u uint64
		if err := readElement(r, &u); err != nil {
			return 0, err
		}
		rv = u

		// The encoding is not canonical if the value could have been
		// encoded using fewer bytes.
		min := uint64(0x100000000)
		if rv < min {
			return 0, messageError("ReadVarInt", fmt.Sprintf(
				"non-canonical varint %x - discriminant %x must "+
					"encode a value greater than %x", rv, discriminant,
				min-1))
		}

	case 0xfe:
		var u uint32
		if err := readElement(r, &u); err != nil {
			return 0, err
		}
		rv = uint64(u)

		min := uint64(0x10000)
		if rv < min {
			return 0, messageError("ReadVarInt", fmt.Sprintf(
				"non-canonical varint %x - discriminant %x must "+
					"encode a value greater than %x", rv, discriminant,
				min-1))
		}

	case 0xfd:
		var u uint16
		if err := readElement(r, &u); err != nil {
			return 0, err
		}
		rv = uint64(u)

		min := uint64(0xfd)
		if rv < min {
			return 0, messageError("ReadVarInt", fmt.Sprintf(
				"non-canonical varint %x - discriminant %x must "+
					"encode a value greater than %x", rv, discriminant,
				min-1))
		}

	default:
		rv = uint64(discriminant)
	}

	return rv, nil
}

// WriteVarInt serializes val to w using a variable number of bytes depending
// on its value.
func WriteVarInt(w io.Writer, pver uint32, val uint64) error {
	if val < 0xfd {
		return writeElement(w, uint8(val))
	}

	if val <= math.MaxUint16 {
		if err := writeElement(w, uint8(0xfd)); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, uint16(val))
	}

	if val <= math.MaxUint32 {
		if err := writeElement(w, uint8(0xfe)); err != nil {
			return err
		}
		return writeElement(w, uint32(val))
	}

	if err := writeElement(w, uint8(0xff)); err != nil {
		return err
	}
	return writeElement(w, val)
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	if val < 0xfd {
		return 1
	}
	if val <= math.MaxUint16 {
		return 3
	}
	if val <= math.MaxUint32 {
		return 5
	}
	return 9
}

// ReadVarBytes reads a variable length byte array.  A byte array is encoded
// as a varInt containing the length of the array followed by the bytes
// themselves.  An error is returned if the length is greater than the passed
// maxAllowed parameter which helps protect against memory exhaustion attacks
// and forced panics through malformed messages.
func ReadVarBytes(r io.Reader, pver uint32, maxAllowed uint32,
	fieldName string) ([]byte, error) {

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}

	if count > uint64(maxAllowed) {
		str := fmt.Sprintf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
		return nil, messageError("ReadVarBytes", str)
	}

	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteVarBytes serializes a variable length byte array to w as a varInt
// containing the number of bytes, followed by the bytes themselves.
func WriteVarBytes(w io.Writer, pver uint32, bytes []byte) error {
	slen := uint64(len(bytes))
	err := WriteVarInt(w, pver, slen)
	if err != nil {
		return err
	}

	_, err = w.Write(bytes)
	return err
}
