// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package exchange

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec"
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

func signedContract(t *testing.T, root *hdkeychain.ExtendedKey, counterparty *btcec.PrivateKey, depositAddr string, depositAmount uint64) *message.ExchangeContract {
	t.Helper()

	returnPath := []uint32{44 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 0}
	returnChild, err := hdwallet.Derive(root, returnPath)
	if err != nil {
		t.Fatalf("derive return path: %v", err)
	}
	returnAddr, err := hdwallet.Address(returnChild, hdwallet.ScriptLegacy, hdwallet.Coins["Bitcoin"])
	if err != nil {
		t.Fatalf("return address: %v", err)
	}

	withdrawalPath := []uint32{44 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0 | hdwallet.Hardened, 0, 1}
	withdrawalChild, err := hdwallet.Derive(root, withdrawalPath)
	if err != nil {
		t.Fatalf("derive withdrawal path: %v", err)
	}
	withdrawalAddr, err := hdwallet.Address(withdrawalChild, hdwallet.ScriptLegacy, hdwallet.Coins["Bitcoin"])
	if err != nil {
		t.Fatalf("withdrawal address: %v", err)
	}

	blob := []byte("deposit-quote-blob")
	digest := sha256.Sum256(blob)
	sig, err := counterparty.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign response blob: %v", err)
	}

	return &message.ExchangeContract{
		DepositAddress:     depositAddr,
		DepositAmount:      depositAmount,
		ReturnAddress:      returnAddr,
		ReturnAddressN:     returnPath,
		WithdrawalAddress:  withdrawalAddr,
		WithdrawalAddressN: withdrawalPath,
		ResponseBlob:       blob,
		ResponseSignature:  sig.Serialize(),
	}
}

func TestValidateAcceptsWellFormedContract(t *testing.T) {
	root := testRoot(t)
	counterparty, _ := btcec.NewPrivateKey(btcec.S256())

	c := signedContract(t, root, counterparty, "1outputaddr", 100000)

	ok, reason := ValidateWithKey(c, "1outputaddr", 100000, root, counterparty.PubKey())
	if !ok {
		t.Fatalf("expected valid contract to pass, got reason %q", reason)
	}
}

func TestValidateRejectsWrongCounterpartyKey(t *testing.T) {
	root := testRoot(t)
	counterparty, _ := btcec.NewPrivateKey(btcec.S256())
	impostor, _ := btcec.NewPrivateKey(btcec.S256())

	c := signedContract(t, root, counterparty, "1outputaddr", 100000)

	ok, reason := ValidateWithKey(c, "1outputaddr", 100000, root, impostor.PubKey())
	if ok {
		t.Fatal("expected signature from wrong key to fail validation")
	}
	if reason == "" {
		t.Fatal("expected a non-empty rejection reason")
	}
}

func TestValidateRejectsMismatchedDepositAddress(t *testing.T) {
	root := testRoot(t)
	counterparty, _ := btcec.NewPrivateKey(btcec.S256())

	c := signedContract(t, root, counterparty, "1outputaddr", 100000)

	ok, _ := ValidateWithKey(c, "1differentaddr", 100000, root, counterparty.PubKey())
	if ok {
		t.Fatal("expected deposit address mismatch to fail validation")
	}
}

func TestValidateRejectsUnderivableReturnAddress(t *testing.T) {
	root := testRoot(t)
	counterparty, _ := btcec.NewPrivateKey(btcec.S256())

	c := signedContract(t, root, counterparty, "1outputaddr", 100000)
	c.ReturnAddress = "1notderivable0000000000000000000"

	ok, reason := ValidateWithKey(c, "1outputaddr", 100000, root, counterparty.PubKey())
	if ok {
		t.Fatalf("expected underivable return address to fail validation, reason=%q", reason)
	}
}

func TestValidateRejectsNilKey(t *testing.T) {
	root := testRoot(t)
	counterparty, _ := btcec.NewPrivateKey(btcec.S256())
	c := signedContract(t, root, counterparty, "1outputaddr", 100000)

	ok, reason := ValidateWithKey(c, "1outputaddr", 100000, root, nil)
	if ok || reason == "" {
		t.Fatal("expected nil key to be rejected with a reason")
	}
}
