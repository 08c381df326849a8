// Cosmos bech32 address derivation
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cosmos implements the Cosmos SDK branch of the interactive
// signing engine of spec §4.8: canonical-JSON sign-doc hashing and
// bech32-encoded addresses. It reuses the same btcec deterministic ECDSA
// primitives as signing/bitcoin and signing/ethereum.
package cosmos

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/btcsuite/btcutil/hdkeychain"
	"golang.org/x/crypto/ripemd160"
)

// HRP is the default human-readable prefix (spec §4.8 names only the
// "cosmos" hub; other Cosmos-SDK chains share the same derivation with a
// different prefix, left as a parameter for forward compatibility).
const HRP = "cosmos"

// Address derives the bech32 address for child's compressed public key,
// hashed the Cosmos SDK way: RIPEMD160(SHA256(pubkey)).
func Address(child *hdkeychain.ExtendedKey, hrp string) (string, error) {
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("cosmos: derive public key: %w", err)
	}

	sha := sha256.Sum256(pub.SerializeCompressed())
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	hash := ripe.Sum(nil)

	words, err := bech32.ConvertBits(hash, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("cosmos: convert bits: %w", err)
	}

	addr, err := bech32.Encode(hrp, words)
	if err != nil {
		return "", fmt.Errorf("cosmos: bech32 encode: %w", err)
	}

	return addr, nil
}
