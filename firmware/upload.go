// Bootloader firmware-upload state machine
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package firmware implements the bootloader-mode firmware-upload engine
// of spec §4.9: a raw streaming flash writer gated on image hash and
// three-signature verification, with the storage shadow/restore dance
// that lets an upgrade preserve an existing seed. Grounded on
// bootloader_main.c/usb_flash.c in original_source/ for step ordering and
// on storage.Store's commit-magic-last protocol, which this package
// reuses directly for the storage-shadow half of the flow.
package firmware

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"math/big"

	"github.com/btcsuite/btcd/btcec"

	"github.com/usbarmory/walletfw/board"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/storage"
)

const (
	// preambleLen is the fixed protobuf-style preamble at the start of
	// the raw FirmwareUpload stream, skipped before the image proper
	// (spec §4.9 step 3: "skip the fixed protobuf preamble"). The Open
	// Question of spec §9 (in-band vs out-of-band hash) is resolved here
	// as in-band: the expected hash immediately follows the preamble.
	preambleLen = 4

	// hashFieldLen is the declared SHA-256 expected-hash field following
	// the preamble.
	hashFieldLen = sha256.Size

	// headerLen is the total first-segment prefix skipped before image
	// byte 0.
	headerLen = preambleLen + hashFieldLen

	// MetaHeaderLen is the application meta-header size (spec §4.9:
	// "first 256 bytes of app region"): 4-byte magic + 4-byte code
	// length + 3 one-byte sig indices + 1-byte flags + 52 reserved bytes
	// + three 64-byte signatures = 256.
	MetaHeaderLen = 4 + 4 + 3 + 1 + 52 + 3*64

	magicOffset     = 0
	codeLenOffset   = 4
	sigIndexOffset  = 8
	flagsOffset     = 11
	signaturesStart = 64
	signatureLen    = 64
)

// Magic is the "KPKY" commit-token literal (spec §4.9's meta header and
// §3's "magic acts as the commit token").
var Magic = [4]byte{'K', 'P', 'K', 'Y'}

// PreservesStorage reports whether flags requests storage preservation
// (spec: "flags & 0x01 requests storage preservation across firmware
// update").
func PreservesStorage(flags byte) bool {
	return flags&0x01 != 0
}

// State is the upload engine's phase.
type State int

const (
	StateIdle State = iota
	StateUploading
	StateComplete
	StateError
)

// BuiltinKeys are the three vendor signature-verification public keys
// (spec §4.9.a). Provisioning a production device substitutes the real
// vendor keys at build time; these are placeholders.
var BuiltinKeys [3]*btcec.PublicKey

// Engine drives one firmware-erase/upload interaction. It holds at most
// one active upload session per spec §9's Design Notes table ("the
// dispatcher stores at most one active session per category").
type Engine struct {
	flash   board.Flash
	store   *storage.Store
	confirm func(prompt string) (bool, error)

	state State

	shadow      storage.Record
	haveShadow  bool
	started     bool
	offset      int64
	expectHash  [32]byte
	hasher      hash.Hash
}

// New returns an idle Engine writing to flash and using store for the
// storage-shadow dance.
func New(flash board.Flash, store *storage.Store, confirm func(prompt string) (bool, error)) *Engine {
	return &Engine{flash: flash, store: store, confirm: confirm, state: StateIdle}
}

// State returns the current upload phase.
func (e *Engine) State() State {
	return e.state
}

// Erase implements FirmwareErase (spec §4.9 step 1): capture the storage
// shadow in RAM, wipe storage and application flash, and arm the engine
// to accept FirmwareUpload.
func (e *Engine) Erase() error {
	e.shadow = e.store.Shadow()
	e.haveShadow = true

	if err := e.store.Wipe(); err != nil {
		return fmt.Errorf("firmware: wipe storage: %w", err)
	}
	if err := e.flash.Unlock(); err != nil {
		return fmt.Errorf("firmware: unlock flash: %w", err)
	}
	if err := eraseRegion(e.flash); err != nil {
		return err
	}
	if err := e.flash.Lock(); err != nil {
		return fmt.Errorf("firmware: lock flash: %w", err)
	}

	e.state = StateUploading
	e.started = false
	e.offset = 0
	e.hasher = sha256.New()

	return nil
}

func eraseRegion(f board.Flash) error {
	size := f.Size()
	blank := make([]byte, size)
	for i := range blank {
		blank[i] = 0xff
	}
	if _, err := f.WriteAt(blank, 0); err != nil {
		return fmt.Errorf("firmware: erase application region: %w", err)
	}
	return nil
}

// Segment feeds one raw FirmwareUpload chunk. total is the declared
// length of the whole raw message (preamble + hash field + image),
// matching transport.Sink.RawSegment's contract. It returns non-nil
// (typ, payload) only when the stream has fully completed (successfully
// or not) and a reply should be sent; it returns (0, nil) while more
// segments are still expected.
func (e *Engine) Segment(segment []byte, total uint32) (typ message.Type, payload []byte, done bool) {
	if e.state != StateUploading {
		return message.TypeFailure, (&message.Failure{Code: message.FirmwareError, Message: "upload not armed"}).Encode(), true
	}

	if !e.started {
		typ, payload, done, ok := e.firstSegment(segment)
		if !ok {
			return typ, payload, done
		}
		segment = segment[headerLen:]
		if len(segment) == 0 {
			return 0, nil, false
		}
	}

	if err := e.writeImage(segment); err != nil {
		return e.fail(err.Error())
	}

	if uint32(e.offset)+headerLen < total {
		return 0, nil, false
	}

	return e.finish()
}

// firstSegment consumes the header, validates the magic, and unlocks
// flash. ok is false if the caller should return immediately with
// (typ, payload, done); ok is true if the remainder of segment (past the
// header) still needs to be written as image data.
func (e *Engine) firstSegment(segment []byte) (typ message.Type, payload []byte, done bool, ok bool) {
	if len(segment) < headerLen+4 {
		typ, payload, done = e.fail("firmware segment too short for header")
		return typ, payload, done, false
	}

	copy(e.expectHash[:], segment[preambleLen:headerLen])

	image := segment[headerLen:]
	if image[0] != Magic[0] || image[1] != Magic[1] || image[2] != Magic[2] || image[3] != Magic[3] {
		typ, payload, done = e.fail("Not valid firmware")
		return typ, payload, done, false
	}

	if err := e.flash.Unlock(); err != nil {
		typ, payload, done = e.fail(err.Error())
		return typ, payload, done, false
	}

	e.started = true
	return 0, nil, false, true
}

func (e *Engine) writeImage(segment []byte) error {
	if e.offset+int64(len(segment)) > e.flash.Size() {
		return fmt.Errorf("firmware: image write exceeds flash capacity")
	}
	if _, err := e.flash.WriteAt(segment, e.offset); err != nil {
		return err
	}
	e.hasher.Write(segment)
	e.offset += int64(len(segment))
	return nil
}

func (e *Engine) finish() (message.Type, []byte, bool) {
	if err := e.flash.Lock(); err != nil {
		return e.fail(err.Error())
	}
	e.state = StateComplete

	meta := make([]byte, MetaHeaderLen)
	if _, err := e.flash.ReadAt(meta, 0); err != nil {
		return e.fail(err.Error())
	}

	codeLen := binary.BigEndian.Uint32(meta[codeLenOffset : codeLenOffset+4])
	sigIndexes := meta[sigIndexOffset : sigIndexOffset+3]

	code := make([]byte, codeLen)
	if _, err := e.flash.ReadAt(code, MetaHeaderLen); err != nil {
		return e.fail(err.Error())
	}
	codeDigest := sha256.Sum256(code)

	if verifySignatures(meta, sigIndexes, codeDigest) {
		if e.haveShadow {
			if err := e.store.Mutate(func(r *storage.Record) error { *r = e.shadow; return nil }); err == nil {
				e.store.Commit()
			}
		}
	}

	digest := e.hasher.Sum(nil)
	var got [32]byte
	copy(got[:], digest)
	if got != e.expectHash {
		return e.fail("firmware hash mismatch")
	}

	confirmed, err := e.confirm(fmt.Sprintf("%x", got))
	if err != nil || !confirmed {
		return e.fail("firmware fingerprint not confirmed")
	}

	commitMagic := meta[magicOffset : magicOffset+4]
	copy(commitMagic, Magic[:])
	if err := e.flash.Unlock(); err == nil {
		e.flash.WriteAt(commitMagic, magicOffset)
		e.flash.Lock()
	}

	e.state = StateIdle
	return message.TypeSuccess, (&message.Success{Message: "Upload complete"}).Encode(), true
}

// verifySignatures checks the three fixed-offset 64-byte raw (r, s)
// signatures against BuiltinKeys[sigIndexes[i]], all over codeDigest.
func verifySignatures(meta []byte, sigIndexes []byte, codeDigest [32]byte) bool {
	for i := 0; i < 3; i++ {
		idx := int(sigIndexes[i])
		if idx < 0 || idx >= len(BuiltinKeys) || BuiltinKeys[idx] == nil {
			return false
		}

		off := signaturesStart + i*signatureLen
		raw := meta[off : off+signatureLen]
		r := new(big.Int).SetBytes(raw[:32])
		s := new(big.Int).SetBytes(raw[32:])
		sig := btcec.NewSignature(r, s)
		if !sig.Verify(codeDigest[:], BuiltinKeys[idx]) {
			return false
		}
	}
	return true
}

func (e *Engine) fail(msg string) (message.Type, []byte, bool) {
	e.state = StateError
	if e.haveShadow {
		e.shadow = storage.Record{}
	}
	return message.TypeFailure, (&message.Failure{Code: message.FirmwareError, Message: msg}).Encode(), true
}
