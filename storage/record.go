// Persistent storage record layout
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package storage implements the versioned, atomic, dual-slot (here:
// three-slot) wear-balanced persistent record of spec §3/§4.4. The record
// layout is grounded on imx6/usb/descriptor.go's fixed-struct
// "Bytes()"/binary.Write convention; the slot-rotation bookkeeping is
// grounded on dma/alloc.go's Region/block accounting style.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// MagicLiteral marks a slot as holding a valid record; it is written
	// last during commit so it also serves as the commit token (spec
	// §4.4 step 3).
	MagicLiteral = "WFW1"

	uuidLen       = 12
	uuidStrLen    = 25
	mnemonicCap   = 240
	languageLen   = 16
	labelLen      = 33
	pinCap        = 10
	policyNameLen = 16
	policyCount   = 8

	chainCodeLen  = 32
	privateKeyLen = 32
	publicKeyLen  = 33

	// CurrentVersion is the compile-time record format version (spec
	// §4.4 migration).
	CurrentVersion = 1
)

// Node mirrors the optional HD node payload of spec §3.
type Node struct {
	Depth       uint32
	Fingerprint uint32
	ChildNum    uint32
	ChainCode   [chainCodeLen]byte
	PrivateKey  [privateKeyLen]byte
	PublicKey   [publicKeyLen]byte
}

// Policy is one fixed-length feature flag entry (spec §3).
type Policy struct {
	Name    [policyNameLen]byte
	Enabled boolByte
}

// boolByte serializes as exactly one byte through encoding/binary, the
// same guarantee descriptor.go relies on for its uint8 fields.
type boolByte uint8

func (b boolByte) bool() bool { return b != 0 }
func boolOf(v bool) boolByte {
	if v {
		return 1
	}
	return 0
}

// Record is the flat, pointer-free persistent record of spec §3,
// serialized little-endian by encoding/binary with its fields packed back
// to back (no padding or alignment).
//
// Exactly one of HasNode/HasMnemonic may be true once initialized; both
// false means uninitialized (spec §3 invariant 1).
type Record struct {
	Magic   [4]byte
	UUID    [uuidLen]byte
	UUIDStr [uuidStrLen]byte
	Version uint32

	HasNode boolByte
	Node    Node

	HasMnemonic boolByte
	MnemonicLen uint16
	Mnemonic    [mnemonicCap]byte

	PassphraseProtection boolByte

	HasPin            boolByte
	PinLen            uint8
	Pin               [pinCap]byte
	PinFailedAttempts uint32

	Language [languageLen]byte
	Label    [labelLen]byte

	Imported boolByte

	Policies [policyCount]Policy
}

// RecordSize is the fixed on-flash size of Record.
var RecordSize = binary.Size(Record{})

// MarshalBinary serializes the record, matching descriptor.go's
// "Bytes()" struct-to-byte-image convention.
func (r *Record) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(RecordSize)
	if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
		return nil, fmt.Errorf("storage: marshal record: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalRecord parses a full-size byte image into a Record.
func UnmarshalRecord(data []byte) (*Record, error) {
	if len(data) < RecordSize {
		return nil, fmt.Errorf("storage: record image too short (%d < %d)", len(data), RecordSize)
	}

	r := &Record{}
	if err := binary.Read(bytes.NewReader(data[:RecordSize]), binary.LittleEndian, r); err != nil {
		return nil, fmt.Errorf("storage: unmarshal record: %w", err)
	}
	return r, nil
}

// ValidMagic reports whether the record's magic field matches the literal
// (i.e. the slot holding it is a valid commit).
func (r *Record) ValidMagic() bool {
	return string(r.Magic[:]) == MagicLiteral
}

// --- typed getters: copy fields into caller-owned values, per spec §4.4 ---

func (r *Record) Mnemonic_() string {
	n := int(r.MnemonicLen)
	if n > len(r.Mnemonic) {
		n = len(r.Mnemonic)
	}
	return string(r.Mnemonic[:n])
}

func (r *Record) SetMnemonic(words string) error {
	if len(words) > mnemonicCap {
		return fmt.Errorf("storage: mnemonic too long (%d > %d)", len(words), mnemonicCap)
	}
	var buf [mnemonicCap]byte
	copy(buf[:], words)
	r.Mnemonic = buf
	r.MnemonicLen = uint16(len(words))
	r.HasMnemonic = boolOf(true)
	r.HasNode = boolOf(false)
	r.Node = Node{}
	return nil
}

func (r *Record) SetNode(n Node) {
	r.Node = n
	r.HasNode = boolOf(true)
	r.HasMnemonic = boolOf(false)
	r.MnemonicLen = 0
	r.Mnemonic = [mnemonicCap]byte{}
}

func (r *Record) Pin_() string {
	n := int(r.PinLen)
	if n > len(r.Pin) {
		n = len(r.Pin)
	}
	return string(r.Pin[:n])
}

func (r *Record) SetPin(pin string) error {
	if len(pin) > pinCap {
		return fmt.Errorf("storage: pin too long (%d > %d)", len(pin), pinCap)
	}
	var buf [pinCap]byte
	copy(buf[:], pin)
	r.Pin = buf
	r.PinLen = uint8(len(pin))
	r.HasPin = boolOf(len(pin) > 0)
	return nil
}

func (r *Record) ClearPin() {
	r.Pin = [pinCap]byte{}
	r.PinLen = 0
	r.HasPin = boolOf(false)
}

func fixedString(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}

func setFixedString(dst []byte, s string) error {
	if len(s) >= len(dst) {
		return fmt.Errorf("storage: string too long (%d >= %d)", len(s), len(dst))
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
	return nil
}

func (r *Record) Label_() string    { return fixedString(r.Label[:]) }
func (r *Record) Language_() string { return fixedString(r.Language[:]) }

func (r *Record) SetLabel(s string) error    { return setFixedString(r.Label[:], s) }
func (r *Record) SetLanguage(s string) error { return setFixedString(r.Language[:], s) }

// SetPassphraseProtection toggles the BIP-39 passphrase policy flag.
func (r *Record) SetPassphraseProtection(v bool) { r.PassphraseProtection = boolOf(v) }

// SetImported marks the record as having been provisioned via LoadDevice
// rather than ResetDevice (spec §8 scenario S2 vs S4).
func (r *Record) SetImported(v bool) { r.Imported = boolOf(v) }

// Initialized reports whether exactly one of {mnemonic, node} is set
// (spec §3 invariant 1; both absent means uninitialized).
func (r *Record) Initialized() bool {
	return r.HasNode.bool() != r.HasMnemonic.bool() && (r.HasNode.bool() || r.HasMnemonic.bool())
}

// PolicyEnabled reports the flag named name, defaulting to false if the
// policy is not present in the fixed-length table.
func (r *Record) PolicyEnabled(name string) bool {
	for _, p := range r.Policies {
		if fixedString(p.Name[:]) == name {
			return p.Enabled.bool()
		}
	}
	return false
}

// SetPolicy sets or inserts the named policy flag into the first free or
// matching slot of the fixed-length table.
func (r *Record) SetPolicy(name string, enabled bool) error {
	free := -1
	for i, p := range r.Policies {
		n := fixedString(p.Name[:])
		if n == name {
			r.Policies[i].Enabled = boolOf(enabled)
			return nil
		}
		if n == "" && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return fmt.Errorf("storage: policy table full (%d entries)", policyCount)
	}
	if err := setFixedString(r.Policies[free].Name[:], name); err != nil {
		return err
	}
	r.Policies[free].Enabled = boolOf(enabled)
	return nil
}
