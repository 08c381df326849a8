// Bitcoin-style address rendering
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hdwallet

import (
	"fmt"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/hdkeychain"
)

// Address renders child's public key as a human-readable address per
// scriptType and coin (spec §4.7's script type table). It lives in
// hdwallet rather than signing/bitcoin so both the Bitcoin signing
// engine and the exchange-contract validator can render addresses
// without importing one another.
func Address(child *hdkeychain.ExtendedKey, scriptType ScriptType, coin Coin) (string, error) {
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("hdwallet: derive public key: %w", err)
	}

	pkHash := btcutil.Hash160(pub.SerializeCompressed())

	switch scriptType {
	case ScriptLegacy:
		addr, err := btcutil.NewAddressPubKeyHash(pkHash, coin.Params)
		if err != nil {
			return "", fmt.Errorf("hdwallet: p2pkh address: %w", err)
		}
		return addr.EncodeAddress(), nil

	case ScriptP2SHSegwit:
		redeemScript := append([]byte{0x00, 0x14}, pkHash...)
		scriptHash := btcutil.Hash160(redeemScript)
		addr, err := btcutil.NewAddressScriptHashFromHash(scriptHash, coin.Params)
		if err != nil {
			return "", fmt.Errorf("hdwallet: p2sh-segwit address: %w", err)
		}
		return addr.EncodeAddress(), nil

	case ScriptNativeSegwit:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, coin.Params)
		if err != nil {
			return "", fmt.Errorf("hdwallet: bech32 address: %w", err)
		}
		return addr.EncodeAddress(), nil

	default:
		addr, err := btcutil.NewAddressPubKeyHash(pkHash, coin.Params)
		if err != nil {
			return "", fmt.Errorf("hdwallet: fallback p2pkh address: %w", err)
		}
		return addr.EncodeAddress(), nil
	}
}
