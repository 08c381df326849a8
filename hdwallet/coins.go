// Per-coin network parameters
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hdwallet wraps the library BIP-32/BIP-39 primitives (spec §1:
// "bundled ... HD-node-derivation primitives (consumed as a library)")
// with the coin-specific path rule enforcement of spec §4.7.
package hdwallet

import "github.com/btcsuite/btcd/chaincfg"

// Coin describes the network parameters and feature flags gating the
// path rule table of spec §4.7.
type Coin struct {
	Name           string
	Bip44CoinType  uint32
	Params         *chaincfg.Params
	SupportsSegwit bool
	SupportsBech32 bool
}

// Coins is the supported coin table, keyed by the GetAddress/SignTx
// CoinName field.
var Coins = map[string]Coin{
	"Bitcoin": {
		Name:           "Bitcoin",
		Bip44CoinType:  0,
		Params:         &chaincfg.MainNetParams,
		SupportsSegwit: true,
		SupportsBech32: true,
	},
	"Testnet": {
		Name:           "Testnet",
		Bip44CoinType:  1,
		Params:         &chaincfg.TestNet3Params,
		SupportsSegwit: true,
		SupportsBech32: true,
	},
	"Litecoin": {
		Name:           "Litecoin",
		Bip44CoinType:  2,
		Params:         &chaincfg.MainNetParams,
		SupportsSegwit: true,
		SupportsBech32: true,
	},
}

// Lookup returns the Coin for name, and whether it is known.
func Lookup(name string) (Coin, bool) {
	c, ok := Coins[name]
	return c, ok
}
