// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bitcoin

import (
	"fmt"
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

func format(coin hdwallet.Coin, amount uint64) string {
	return fmt.Sprintf("%d", amount)
}

func TestSessionRejectsZeroInputs(t *testing.T) {
	root := testRoot(t)
	_, err := NewSession(hdwallet.Coins["Bitcoin"], root, &message.SignTx{InputsCount: 0, OutputsCount: 1}, nil, format)
	if err == nil {
		t.Fatal("expected error for inputs_count == 0")
	}
}

func TestSessionHappyPath(t *testing.T) {
	root := testRoot(t)
	confirmCalls := 0
	confirm := func(prompt string) (bool, error) {
		confirmCalls++
		return true, nil
	}

	sess, err := NewSession(hdwallet.Coins["Bitcoin"], root, &message.SignTx{InputsCount: 1, OutputsCount: 1, Version: 1}, confirm, format)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	typ, _ := sess.Start()
	if typ != message.TypeTxRequest {
		t.Fatalf("Start type = %v, want TxRequest", typ)
	}

	inputAck := &message.TxAck{Input: &message.TxInput{
		PrevHash:   make([]byte, 32),
		PrevIndex:  0,
		AddressN:   []uint32{44 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0},
		Amount:     100000,
		ScriptType: "SPENDADDRESS",
	}}
	typ, _, done := sess.HandleAck(inputAck)
	if done || typ != message.TypeTxRequest {
		t.Fatalf("pass1 input ack: typ=%v done=%v", typ, done)
	}

	outputAck := &message.TxAck{Output: &message.TxOutput{
		Address:    "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA",
		Amount:     90000,
		ScriptType: "PAYTOADDRESS",
	}}
	typ, _, done = sess.HandleAck(outputAck)
	if done || typ != message.TypeTxRequest {
		t.Fatalf("output ack: typ=%v done=%v", typ, done)
	}
	if confirmCalls != 1 {
		t.Fatalf("confirmCalls = %d, want 1 (non-change output)", confirmCalls)
	}

	typ, payload, done := sess.HandleAck(inputAck)
	if !done || typ != message.TypeTxRequest {
		t.Fatalf("pass2 input ack: typ=%v done=%v", typ, done)
	}

	req, err := decodeTxRequest(payload)
	if err != nil {
		t.Fatalf("decode final TxRequest: %v", err)
	}
	if req.RequestType != message.TxRequestInputSig {
		t.Fatalf("final request type = %v, want InputSig", req.RequestType)
	}
	if len(req.Signature) == 0 || len(req.SerializedTx) == 0 {
		t.Fatal("expected non-empty signature and pubkey")
	}
}

func TestSessionRejectsOutputExceedingInputTotal(t *testing.T) {
	root := testRoot(t)
	confirm := func(string) (bool, error) { return true, nil }

	sess, err := NewSession(hdwallet.Coins["Bitcoin"], root, &message.SignTx{InputsCount: 1, OutputsCount: 1}, confirm, format)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sess.HandleAck(&message.TxAck{Input: &message.TxInput{Amount: 100, PrevHash: make([]byte, 32)}})

	typ, _, done := sess.HandleAck(&message.TxAck{Output: &message.TxOutput{Address: "x", Amount: 200}})
	if !done || typ != message.TypeFailure {
		t.Fatalf("over-spend output: typ=%v done=%v, want Failure/true", typ, done)
	}
}

func TestSessionChangeOutputSkipsConfirmation(t *testing.T) {
	root := testRoot(t)
	confirmCalls := 0
	confirm := func(string) (bool, error) {
		confirmCalls++
		return true, nil
	}

	sess, err := NewSession(hdwallet.Coins["Bitcoin"], root, &message.SignTx{InputsCount: 1, OutputsCount: 1}, confirm, format)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	accountPath := []uint32{44 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0 | hdwallet.Hardened}
	sess.HandleAck(&message.TxAck{Input: &message.TxInput{
		Amount: 1000, PrevHash: make([]byte, 32),
		AddressN: append(append([]uint32{}, accountPath...), 0, 0),
	}})

	changePath := append(append([]uint32{}, accountPath...), 1, 0)
	sess.HandleAck(&message.TxAck{Output: &message.TxOutput{Address: "change", Amount: 900, AddressN: changePath}})

	if confirmCalls != 0 {
		t.Fatalf("confirmCalls = %d, want 0 for change output", confirmCalls)
	}
}

func decodeTxRequest(b []byte) (*message.TxRequest, error) {
	d, err := message.Decode(b)
	if err != nil {
		return nil, err
	}
	return &message.TxRequest{
		RequestType: message.TxRequestType(d.Uint32(1, 0)),
		Signature:   d.BytesField(4),
		SerializedTx: d.BytesField(5),
	}, nil
}
