// Exchange contract validation
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package exchange validates the signed deposit/return/withdrawal
// contract optionally embedded in a transaction output (spec §4.8). Two
// validator variants with different built-in keys and response formats
// coexist in the source; this module implements the
// ShapeShift-style single-key, SHA-256-over-response-blob variant (spec
// §9 open question, decided in DESIGN.md).
package exchange

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
)

// PublicKeyHex is the built-in counterparty verification key (spec
// §4.8's "built-in exchange public key"). It is a placeholder test key:
// provisioning a production device substitutes the real vendor key at
// build time.
const PublicKeyHex = "0itest000000000000000000000000000000000000000000000000000000"

var builtinPubKey *btcec.PublicKey

func init() {
	// The placeholder key above is intentionally not valid compressed
	// point encoding; callers exercise Validate with an injected key via
	// ValidateWithKey in tests. ParsePubKey failure here is tolerated by
	// leaving builtinPubKey nil, which makes Validate reject every
	// contract until a real key is provisioned.
	raw, err := hex.DecodeString(PublicKeyHex)
	if err != nil || len(raw) != 33 {
		return
	}
	pub, err := btcec.ParsePubKey(raw, btcec.S256())
	if err == nil {
		builtinPubKey = pub
	}
}

// Validate runs the five checks of spec §4.8 against contract, the
// output address/amount it was attached to, and root (used to confirm
// the return/withdrawal paths are derivable on this device). It returns
// false with a reason string on the first failing check.
func Validate(contract *message.ExchangeContract, outputAddress string, outputAmount uint64, root *hdkeychain.ExtendedKey) (bool, string) {
	return validate(contract, outputAddress, outputAmount, root, builtinPubKey)
}

// ValidateWithKey is Validate with an explicit counterparty key, used by
// tests that do not rely on the placeholder built-in key.
func ValidateWithKey(contract *message.ExchangeContract, outputAddress string, outputAmount uint64, root *hdkeychain.ExtendedKey, key *btcec.PublicKey) (bool, string) {
	return validate(contract, outputAddress, outputAmount, root, key)
}

func validate(c *message.ExchangeContract, outputAddress string, outputAmount uint64, root *hdkeychain.ExtendedKey, key *btcec.PublicKey) (bool, string) {
	if key == nil {
		return false, "no exchange counterparty key provisioned"
	}

	sig, err := btcec.ParseSignature(c.ResponseSignature, btcec.S256())
	if err != nil {
		return false, "malformed counterparty signature"
	}
	digest := sha256.Sum256(c.ResponseBlob)
	if !sig.Verify(digest[:], key) {
		return false, "counterparty signature invalid"
	}

	if c.DepositAddress != outputAddress {
		return false, "deposit address does not match output address"
	}
	if c.DepositAmount != outputAmount {
		return false, "deposit amount does not match output amount"
	}

	if !derivable(root, c.ReturnAddressN, c.ReturnAddress) {
		return false, "return address not derivable on this device"
	}
	if !derivable(root, c.WithdrawalAddressN, c.WithdrawalAddress) {
		return false, "withdrawal address not derivable on this device"
	}

	return true, ""
}

// derivable reports whether path derives to an address matching want.
// It tries each supported script type since the contract does not carry
// one explicitly.
func derivable(root *hdkeychain.ExtendedKey, path []uint32, want string) bool {
	if len(path) == 0 || want == "" {
		return false
	}

	child, err := hdwallet.Derive(root, path)
	if err != nil {
		return false
	}

	for _, coin := range hdwallet.Coins {
		for _, st := range []hdwallet.ScriptType{hdwallet.ScriptLegacy, hdwallet.ScriptNativeSegwit, hdwallet.ScriptP2SHSegwit} {
			got, err := hdwallet.Address(child, st, coin)
			if err == nil && got == want {
				return true
			}
		}
	}
	return false
}
