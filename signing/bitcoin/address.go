// Bitcoin-style address derivation
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bitcoin implements the Bitcoin-family branch of the
// interactive transaction signing engine of spec §4.8: legacy P2PKH,
// P2SH-wrapped segwit, and native segwit (bech32) addressing, and the
// two-pass sighash/sign pipeline. It is grounded on
// imx6/usb/descriptor.go's field-by-field struct assembly, rebuilt atop
// the library CKD/address-encoding primitives of github.com/btcsuite.
package bitcoin

import (
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
)

// Address derives the human-readable address for a child key, formatted
// per scriptType (spec §4.7's script type table).
func Address(child *hdkeychain.ExtendedKey, scriptType hdwallet.ScriptType, coin hdwallet.Coin) (string, error) {
	return hdwallet.Address(child, scriptType, coin)
}
