// Ethereum address derivation and Keccak-256 hashing
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ethereum implements the Ethereum branch of the interactive
// signing engine of spec §4.8: Keccak-256/RLP hashing, EIP-155 replay
// protection, and EIP-191 message signing. It reuses the same
// btcec-based deterministic ECDSA primitives as signing/bitcoin, grounded
// on the same library stack (see DESIGN.md).
package ethereum

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/hdkeychain"
	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the Keccak-256 digest (not NIST SHA3-256; Ethereum
// predates the final SHA-3 padding change) of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Address derives the 20-byte Ethereum address (Keccak256(pubkey)[12:])
// from child's uncompressed public key, formatted as an EIP-55
// checksummed hex string.
func Address(child *hdkeychain.ExtendedKey) (string, error) {
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("ethereum: derive public key: %w", err)
	}

	uncompressed := pub.SerializeUncompressed()[1:] // drop the 0x04 prefix
	digest := Keccak256(uncompressed)
	addr := digest[12:]

	return checksum(addr), nil
}

// checksum implements EIP-55: each hex nibble of the address is
// uppercased iff the corresponding nibble of Keccak256(lowercase hex
// address) is >= 8.
func checksum(addr []byte) string {
	lower := hex.EncodeToString(addr)
	hashed := hex.EncodeToString(Keccak256([]byte(lower)))

	out := make([]byte, len(lower)+2)
	out[0], out[1] = '0', 'x'

	for i, c := range []byte(lower) {
		if c >= '0' && c <= '9' {
			out[i+2] = c
			continue
		}
		if hashed[i] >= '8' {
			out[i+2] = c - ('a' - 'A')
		} else {
			out[i+2] = c
		}
	}

	return string(out)
}
