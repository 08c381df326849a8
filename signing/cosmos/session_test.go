// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cosmos

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
)

func testRoot(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()
	root, err := hdwallet.RootFromMnemonic(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", "")
	if err != nil {
		t.Fatalf("RootFromMnemonic: %v", err)
	}
	return root
}

func TestAddressBech32Prefix(t *testing.T) {
	root := testRoot(t)
	child, err := hdwallet.Derive(root, []uint32{44 | hdwallet.Hardened, 118 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	addr, err := Address(child, HRP)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if !strings.HasPrefix(addr, "cosmos1") {
		t.Fatalf("Address = %q, want cosmos1... prefix", addr)
	}
}

func TestSessionRejectsZeroMessages(t *testing.T) {
	_, err := NewSession(testRoot(t), &message.CosmosSignTx{AddressN: []uint32{1}, MsgCount: 0}, nil)
	if err == nil {
		t.Fatal("expected error for msgs_count == 0")
	}
}

func TestSessionHappyPathTwoMessages(t *testing.T) {
	root := testRoot(t)
	var seen []uint32
	confirm := func(idx uint32, msgJSON []byte) (bool, error) {
		seen = append(seen, idx)
		return true, nil
	}

	req := &message.CosmosSignTx{
		AddressN:      []uint32{44 | hdwallet.Hardened, 118 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0},
		AccountNumber: 7,
		ChainID:       "cosmoshub-4",
		Sequence:      3,
		MsgCount:      2,
		FeeDenom:      "uatom",
		FeeAmount:     500,
		Memo:          "test",
	}

	sess, err := NewSession(root, req, confirm)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	typ, _ := sess.Start()
	if typ != message.TypeCosmosTxRequest {
		t.Fatalf("Start type = %v", typ)
	}

	typ, _, done := sess.HandleAck(&message.CosmosTxAck{MessageJSON: []byte(`{"type":"cosmos-sdk/MsgSend"}`)})
	if done || typ != message.TypeCosmosTxRequest {
		t.Fatalf("message 0 ack: typ=%v done=%v", typ, done)
	}

	typ, payload, done := sess.HandleAck(&message.CosmosTxAck{MessageJSON: []byte(`{"type":"cosmos-sdk/MsgSend2"}`)})
	if !done || typ != message.TypeCosmosTxRequest {
		t.Fatalf("message 1 ack: typ=%v done=%v", typ, done)
	}
	if len(seen) != 2 {
		t.Fatalf("confirm called %d times, want 2", len(seen))
	}

	d, err := message.Decode(payload)
	if err != nil {
		t.Fatalf("decode final CosmosTxRequest: %v", err)
	}
	if !d.Bool(2, false) {
		t.Fatal("expected finished=true in final request")
	}
	if len(d.BytesField(3)) != 64 {
		t.Fatalf("signature length = %d, want 64", len(d.BytesField(3)))
	}
}

func TestSessionAbortsOnDeclinedMessage(t *testing.T) {
	root := testRoot(t)
	confirm := func(uint32, []byte) (bool, error) { return false, nil }

	req := &message.CosmosSignTx{
		AddressN: []uint32{44 | hdwallet.Hardened, 118 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0},
		ChainID:  "cosmoshub-4",
		MsgCount: 1,
	}

	sess, err := NewSession(root, req, confirm)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	typ, _, done := sess.HandleAck(&message.CosmosTxAck{MessageJSON: []byte(`{}`)})
	if !done || typ != message.TypeFailure {
		t.Fatalf("declined message: typ=%v done=%v, want Failure/true", typ, done)
	}
}

func TestJSONStringEscaping(t *testing.T) {
	got := jsonString(`a"b\c`)
	want := `"a\"b\\c"`
	if got != want {
		t.Fatalf("jsonString = %s, want %s", got, want)
	}
}
