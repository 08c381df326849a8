// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package firmware

import (
	"crypto/sha256"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec"

	"github.com/usbarmory/walletfw/board/simulator"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/storage"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	dir := t.TempDir()
	var paths [storage.SlotCount]string
	for i := range paths {
		paths[i] = filepath.Join(dir, "slot")
		paths[i] += string(rune('a' + i))
	}
	st, err := storage.Open(paths, nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	return st
}

// buildImage assembles a meta header + code region, optionally valid.
func buildImage(t *testing.T, code []byte, sign bool) (image []byte, keys [3]*btcec.PrivateKey) {
	t.Helper()

	meta := make([]byte, MetaHeaderLen)
	copy(meta[magicOffset:], Magic[:])
	binary.BigEndian.PutUint32(meta[codeLenOffset:codeLenOffset+4], uint32(len(code)))
	meta[sigIndexOffset] = 0
	meta[sigIndexOffset+1] = 1
	meta[sigIndexOffset+2] = 2

	digest := sha256.Sum256(code)

	for i := 0; i < 3; i++ {
		priv, err := btcec.NewPrivateKey(btcec.S256())
		if err != nil {
			t.Fatalf("NewPrivateKey: %v", err)
		}
		keys[i] = priv

		if sign {
			sig, err := priv.Sign(digest[:])
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			r := sig.R.Bytes()
			s := sig.S.Bytes()
			off := signaturesStart + i*signatureLen
			copy(meta[off+32-len(r):off+32], r)
			copy(meta[off+64-len(s):off+64], s)
		}
	}

	image = append(meta, code...)
	return image, keys
}

func withBuiltinKeys(keys [3]*btcec.PrivateKey, fn func()) {
	var saved [3]*btcec.PublicKey
	for i, k := range keys {
		saved[i] = BuiltinKeys[i]
		BuiltinKeys[i] = k.PubKey()
	}
	defer func() {
		for i := range saved {
			BuiltinKeys[i] = saved[i]
		}
	}()
	fn()
}

func rawUploadMessage(expectHash [32]byte, image []byte) []byte {
	msg := make([]byte, headerLen+len(image))
	copy(msg[preambleLen:headerLen], expectHash[:])
	copy(msg[headerLen:], image)
	return msg
}

func TestEraseCapturesShadowAndUnlocksForUpload(t *testing.T) {
	store := testStore(t)
	store.Mutate(func(r *storage.Record) error { return nil })
	store.Commit()

	flash := simulator.NewFlash(4096)
	e := New(flash, store, func(string) (bool, error) { return true, nil })

	if err := e.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if e.State() != StateUploading {
		t.Fatalf("State = %v, want StateUploading", e.State())
	}
	if !e.haveShadow {
		t.Fatal("expected shadow captured")
	}
}

func TestUploadRejectsBadMagic(t *testing.T) {
	store := testStore(t)
	flash := simulator.NewFlash(4096)
	e := New(flash, store, func(string) (bool, error) { return true, nil })

	if err := e.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	code := []byte("application code")
	image := make([]byte, MetaHeaderLen+len(code))
	copy(image, []byte{0x00, 0x00, 0x00, 0x00}) // wrong magic
	copy(image[MetaHeaderLen:], code)

	msg := rawUploadMessage(sha256.Sum256(code), image)

	typ, payload, done := e.Segment(msg, uint32(len(msg)))
	if !done || typ != message.TypeFailure {
		t.Fatalf("bad magic: typ=%v done=%v, want Failure/true", typ, done)
	}
	if e.State() != StateError {
		t.Fatalf("State = %v, want StateError", e.State())
	}

	d, err := message.Decode(payload)
	if err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if d.String(2, "") != "Not valid firmware" {
		t.Fatalf("failure message = %q, want %q", d.String(2, ""), "Not valid firmware")
	}
}

func TestUploadGoodSignatureGoodHash(t *testing.T) {
	store := testStore(t)
	flash := simulator.NewFlash(4096)
	e := New(flash, store, func(string) (bool, error) { return true, nil })

	if err := e.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	code := []byte("valid signed application image payload")
	image, keys := buildImage(t, code, true)
	msg := rawUploadMessage(sha256.Sum256(image), image)

	var typ message.Type
	var payload []byte
	var done bool

	withBuiltinKeys(keys, func() {
		typ, payload, done = e.Segment(msg, uint32(len(msg)))
	})

	if !done || typ != message.TypeSuccess {
		t.Fatalf("good upload: typ=%v done=%v, want Success/true", typ, done)
	}

	d, err := message.Decode(payload)
	if err != nil {
		t.Fatalf("decode success: %v", err)
	}
	if d.String(1, "") != "Upload complete" {
		t.Fatalf("message = %q, want %q", d.String(1, ""), "Upload complete")
	}

	meta := make([]byte, 4)
	flash.ReadAt(meta, 0)
	if string(meta) != string(Magic[:]) {
		t.Fatalf("committed magic = %q, want %q", meta, Magic[:])
	}
}

func TestUploadHashMismatchFails(t *testing.T) {
	store := testStore(t)
	flash := simulator.NewFlash(4096)
	e := New(flash, store, func(string) (bool, error) { return true, nil })

	if err := e.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	code := []byte("some application code")
	image, keys := buildImage(t, code, true)

	var wrongHash [32]byte
	msg := rawUploadMessage(wrongHash, image)

	var typ message.Type
	var done bool
	withBuiltinKeys(keys, func() {
		typ, _, done = e.Segment(msg, uint32(len(msg)))
	})

	if !done || typ != message.TypeFailure {
		t.Fatalf("mismatched hash: typ=%v done=%v, want Failure/true", typ, done)
	}
}
