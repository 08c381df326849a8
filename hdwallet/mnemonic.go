// Mnemonic generation/validation and root node construction
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hdwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/tyler-smith/go-bip39"

	"github.com/usbarmory/walletfw/session"
	"github.com/usbarmory/walletfw/storage"
)

// GenerateMnemonic creates a fresh BIP-39 mnemonic of the requested
// entropy strength (spec §6 ResetDevice), consuming the bundled wordlist
// library per spec §1.
func GenerateMnemonic(strengthBits int) (string, error) {
	entropy, err := bip39.NewEntropy(strengthBits)
	if err != nil {
		return "", fmt.Errorf("hdwallet: generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks a mnemonic against the bundled wordlist and its
// checksum (spec §4.6.2 RecoveryDevice's EnforceWordlist).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// RootFromMnemonic derives the session HD root from (mnemonic,
// passphrase), per spec §4.5. The network parameters used for the master
// key itself are immaterial to later per-coin derivation (only the
// address-encoding version bytes differ per coin); mainnet params are
// used as the deterministic default.
func RootFromMnemonic(mnemonic, passphrase string) (*hdkeychain.ExtendedKey, error) {
	seed := session.SeedFromMnemonic(mnemonic, passphrase)
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("hdwallet: derive master from seed: %w", err)
	}
	return root, nil
}

// RootFromNode reconstructs the extended key directly from a stored Node
// (spec §3's optional HD node payload, used when the seed was imported as
// an already-derived node rather than a mnemonic).
func RootFromNode(n storage.Node) (*hdkeychain.ExtendedKey, error) {
	version := chaincfg.MainNetParams.HDPrivateKeyID[:]

	var parentFP [4]byte // root nodes have no parent

	key := hdkeychain.NewExtendedKey(
		version,
		n.PrivateKey[:],
		n.ChainCode[:],
		parentFP[:],
		uint8(n.Depth),
		n.ChildNum,
		true,
	)

	return key, nil
}
