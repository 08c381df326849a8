// Tagged length-prefixed message wire codec
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Each field of a record is written as:
//
//	tag      uint8
//	kind     uint8    (a wireKind, below)
//	length   uvarint  (kindVarBytes only; the fixed-width kinds omit it)
//	payload  []byte
//
// A field absent from the record is simply never written — this is the
// "optional field presence flag" of spec §3/§6: presence is encoded by the
// tag's appearance, not by a separate boolean. Decode keeps every tag it
// sees, known or not, sizing each field from its kind byte, so old and new
// schemas that share the wire kinds can coexist, the same tolerance
// descriptor.go assumes of its fixed-offset USB structures.

// wireKind distinguishes fixed-width scalar tags from length-prefixed ones,
// the way SetupData's fields are fixed width but ConfigurationDescriptor's
// Interfaces are not.
type wireKind uint8

const (
	kindVarBytes wireKind = iota
	kindUint32
	kindUint64
	kindBool
)

// Encoder accumulates tagged fields into a single record payload, mirroring
// the *Descriptor.Bytes() convention of encoding/binary + bytes.Buffer.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder ready for field writes.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// Bytes returns the accumulated record payload.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Bool writes a one-byte boolean field.
func (e *Encoder) Bool(tag uint8, v bool) {
	e.buf.WriteByte(tag)
	e.buf.WriteByte(uint8(kindBool))
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// Uint32 writes a big-endian uint32 field.
func (e *Encoder) Uint32(tag uint8, v uint32) {
	e.buf.WriteByte(tag)
	e.buf.WriteByte(uint8(kindUint32))
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

// Uint64 writes a big-endian uint64 field.
func (e *Encoder) Uint64(tag uint8, v uint64) {
	e.buf.WriteByte(tag)
	e.buf.WriteByte(uint8(kindUint64))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// BytesField writes a length-prefixed byte field. Absent fields must simply not
// call this method — there is no sentinel "empty means absent" rule, since
// a present-but-zero-length field (e.g. an empty label) is legal.
func (e *Encoder) BytesField(tag uint8, v []byte) {
	e.buf.WriteByte(tag)
	e.buf.WriteByte(uint8(kindVarBytes))
	putUvarint(&e.buf, uint64(len(v)))
	e.buf.Write(v)
}

// String writes a length-prefixed UTF-8 string field.
func (e *Encoder) String(tag uint8, v string) {
	e.BytesField(tag, []byte(v))
}

// Field holds one decoded tagged value prior to type-specific extraction.
type Field struct {
	Tag  uint8
	Kind wireKind
	Raw  []byte
}

// Decoder parses a record payload into its tagged fields in one pass.
type Decoder struct {
	fields map[uint8]Field
	order  []uint8
}

// ErrTruncated is returned when a record ends mid-field.
var ErrTruncated = errors.New("message: truncated record")

// Decode parses buf into a Decoder. It does not validate that required
// fields are present; callers use Decoder.Uint32/String/etc. with defaults
// or Decoder.Has to apply per-message invariants (spec §3's presence
// rules), the same way setup.go validates field values after extraction
// rather than during the raw parse.
func Decode(buf []byte) (*Decoder, error) {
	d := &Decoder{fields: make(map[uint8]Field)}

	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, ErrTruncated
		}

		tag := buf[0]
		kind := wireKind(buf[1])
		buf = buf[2:]

		var raw []byte

		switch kind {
		case kindBool:
			if len(buf) < 1 {
				return nil, ErrTruncated
			}
			raw, buf = buf[:1], buf[1:]
		case kindUint32:
			if len(buf) < 4 {
				return nil, ErrTruncated
			}
			raw, buf = buf[:4], buf[4:]
		case kindUint64:
			if len(buf) < 8 {
				return nil, ErrTruncated
			}
			raw, buf = buf[:8], buf[8:]
		case kindVarBytes:
			n, used := binary.Uvarint(buf)
			if used <= 0 {
				return nil, ErrTruncated
			}
			buf = buf[used:]
			if uint64(len(buf)) < n {
				return nil, ErrTruncated
			}
			raw, buf = buf[:n], buf[n:]
		default:
			return nil, fmt.Errorf("message: unknown field kind %d for tag %d", kind, tag)
		}

		d.fields[tag] = Field{Tag: tag, Kind: kind, Raw: append([]byte(nil), raw...)}
		d.order = append(d.order, tag)
	}

	return d, nil
}

// Has reports whether tag was present in the decoded record.
func (d *Decoder) Has(tag uint8) bool {
	_, ok := d.fields[tag]
	return ok
}

// Bool returns the boolean field tag, or def if absent.
func (d *Decoder) Bool(tag uint8, def bool) bool {
	f, ok := d.fields[tag]
	if !ok || len(f.Raw) < 1 {
		return def
	}
	return f.Raw[0] != 0
}

// Uint32 returns the uint32 field tag, or def if absent.
func (d *Decoder) Uint32(tag uint8, def uint32) uint32 {
	f, ok := d.fields[tag]
	if !ok || len(f.Raw) < 4 {
		return def
	}
	return binary.BigEndian.Uint32(f.Raw)
}

// Uint64 returns the uint64 field tag, or def if absent.
func (d *Decoder) Uint64(tag uint8, def uint64) uint64 {
	f, ok := d.fields[tag]
	if !ok || len(f.Raw) < 8 {
		return def
	}
	return binary.BigEndian.Uint64(f.Raw)
}

// BytesField returns the raw bytes of field tag, or nil if absent.
func (d *Decoder) BytesField(tag uint8) []byte {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	return f.Raw
}

// String returns the string field tag, or def if absent.
func (d *Decoder) String(tag uint8, def string) string {
	f, ok := d.fields[tag]
	if !ok {
		return def
	}
	return string(f.Raw)
}
