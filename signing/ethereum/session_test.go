// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ethereum

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

func TestAddressChecksumFormat(t *testing.T) {
	root := testRoot(t)
	child, err := hdwallet.Derive(root, []uint32{44 | hdwallet.Hardened, 60 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	addr, err := Address(child)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Fatalf("Address = %q, want 0x-prefixed 40 hex chars", addr)
	}
	if addr == strings.ToLower(addr) {
		t.Fatal("expected mixed-case EIP-55 checksum, got all lowercase")
	}
}

func TestRLPEncodeBytesShortAndLong(t *testing.T) {
	if got := rlpEncodeBytes(nil); len(got) != 1 || got[0] != 0x80 {
		t.Fatalf("empty bytes = % x, want [80]", got)
	}
	if got := rlpEncodeBytes([]byte{0x01}); len(got) != 1 || got[0] != 0x01 {
		t.Fatalf("single small byte = % x, want raw [01]", got)
	}
	long := make([]byte, 60)
	got := rlpEncodeBytes(long)
	if got[0] != 0xb8 {
		t.Fatalf("long string prefix = %x, want 0xb8", got[0])
	}
}

func TestSessionRejectsMissingPath(t *testing.T) {
	_, err := NewSession(testRoot(t), &message.EthereumSignTx{}, nil)
	if err == nil {
		t.Fatal("expected error for empty address_n")
	}
}

func TestSessionNeedsMoreDataUntilChunksArrive(t *testing.T) {
	root := testRoot(t)
	req := &message.EthereumSignTx{
		AddressN:   []uint32{44 | hdwallet.Hardened, 60 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0},
		Nonce:      []byte{0x01},
		GasPrice:   []byte{0x04, 0xa8, 0x17, 0xc8, 0x00},
		GasLimit:   []byte{0x52, 0x08},
		To:         make([]byte, 20),
		Value:      []byte{0x01},
		DataLength: 4,
	}

	sess, err := NewSession(root, req, func(string) (bool, error) { return true, nil })
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !sess.NeedsMoreData() {
		t.Fatal("expected NeedsMoreData true before chunks arrive")
	}

	sess.AddChunk([]byte{0xde, 0xad, 0xbe, 0xef})
	if sess.NeedsMoreData() {
		t.Fatal("expected NeedsMoreData false after full chunk arrives")
	}
}

func TestFinalizeHappyPathEIP155(t *testing.T) {
	root := testRoot(t)
	req := &message.EthereumSignTx{
		AddressN: []uint32{44 | hdwallet.Hardened, 60 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0},
		Nonce:    []byte{0x00},
		GasPrice: []byte{0x04, 0xa8, 0x17, 0xc8, 0x00},
		GasLimit: []byte{0x52, 0x08},
		To:       make([]byte, 20),
		Value:    []byte{0x01},
		ChainID:  1,
	}

	sess, err := NewSession(root, req, func(string) (bool, error) { return true, nil })
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sig, err := sess.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("len(sig) = %d, want 65", len(sig))
	}
	if sig[64] < 37 {
		t.Fatalf("v = %d, want EIP-155 value (>= 37 for chain 1)", sig[64])
	}
}

func TestFinalizeDeclinedConfirmation(t *testing.T) {
	root := testRoot(t)
	req := &message.EthereumSignTx{
		AddressN: []uint32{44 | hdwallet.Hardened, 60 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0},
		Nonce:    []byte{0x00},
		GasPrice: []byte{0x01},
		GasLimit: []byte{0x52, 0x08},
		To:       make([]byte, 20),
		Value:    []byte{0x01},
	}

	sess, err := NewSession(root, req, func(string) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := sess.Finalize(); err == nil {
		t.Fatal("expected error when confirmation is declined")
	}
}

func TestSignAndVerifyMessage(t *testing.T) {
	root := testRoot(t)
	path := []uint32{44 | hdwallet.Hardened, 60 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0}
	msg := []byte("hello walletfw")

	addr, sig, err := SignMessage(root, path, msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if !VerifyMessage(addr, sig, msg) {
		t.Fatal("VerifyMessage rejected a valid signature")
	}
	if VerifyMessage(addr, sig, []byte("tampered")) {
		t.Fatal("VerifyMessage accepted a signature over the wrong message")
	}
}
