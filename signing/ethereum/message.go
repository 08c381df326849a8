// EIP-191 personal message signing
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ethereum

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
)

// personalDigest returns the Keccak-256 of msg in the EIP-191
// "personal_sign" envelope:
// "\x19Ethereum Signed Message:\n" + len(message) + message.
func personalDigest(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return Keccak256([]byte(prefix), msg)
}

// SignMessage signs msg per EIP-191 with the key at path, returning the
// signing address and a 65-byte (r, s, v) signature.
func SignMessage(root *hdkeychain.ExtendedKey, path []uint32, msg []byte) (address string, signature []byte, err error) {
	child, err := hdwallet.Derive(root, path)
	if err != nil {
		return "", nil, fmt.Errorf("ethereum: derive signing key: %w", err)
	}

	address, err = Address(child)
	if err != nil {
		return "", nil, err
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return "", nil, fmt.Errorf("ethereum: extract private key: %w", err)
	}

	compact, err := btcec.SignCompact(btcec.S256(), priv, personalDigest(msg), false)
	if err != nil {
		return "", nil, fmt.Errorf("ethereum: sign message: %w", err)
	}
	zero(priv)

	sig := make([]byte, 65)
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = compact[0] - 27 + 27

	return address, sig, nil
}

// VerifyMessage checks sig against msg and the claimed address.
func VerifyMessage(address string, sig, msg []byte) bool {
	if len(sig) != 65 {
		return false
	}

	compact := make([]byte, 65)
	compact[0] = sig[64] - 27 + 27
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	digest := personalDigest(msg)

	pub, _, err := btcec.RecoverCompact(btcec.S256(), compact, digest)
	if err != nil {
		return false
	}

	uncompressed := pub.SerializeUncompressed()[1:]
	addr := checksum(Keccak256(uncompressed)[12:])

	return addr == address
}
