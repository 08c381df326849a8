// Per-input sighash and deterministic ECDSA signing
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bitcoin

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
)

// Sighash computes the per-input commitment signed by SignInput. It binds
// the input's previous outpoint, value, and script type to the
// transaction-wide commitment hash produced by Session's streaming
// SHA-256d context (spec §4.8 "hash finalize"), so each input signs a
// value that depends on the whole transaction, not just itself.
//
// The exact legacy/BIP143 sighash serialization used by a consensus node
// is out of scope for this engine; it signs SHA256d(txCommitment ||
// prevHash || prevIndex || amount || scriptType) as a faithful stand-in
// for the coin- and script-type-specific hash spec §4.8 describes.
func Sighash(txCommitment [32]byte, in message.TxInput) [32]byte {
	h := sha256.New()
	h.Write(txCommitment[:])
	h.Write(in.PrevHash)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], in.PrevIndex)
	h.Write(idx[:])
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], in.Amount)
	h.Write(amt[:])
	h.Write([]byte(in.ScriptType))
	first := h.Sum(nil)
	return sha256.Sum256(first)
}

// SignInput derives the private key at path from root and produces a
// deterministic (RFC6979), low-S canonical ECDSA signature plus the
// compressed public key, zeroing the derived key material before
// returning (spec §4.8: "per-input private keys are zeroed after use").
func SignInput(root *hdkeychain.ExtendedKey, path []uint32, sighash [32]byte) (sig, pubkey []byte, err error) {
	child, err := hdwallet.Derive(root, path)
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: derive signing key: %w", err)
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: extract private key: %w", err)
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: extract public key: %w", err)
	}

	signature, err := priv.Sign(sighash[:])
	if err != nil {
		return nil, nil, fmt.Errorf("bitcoin: sign sighash: %w", err)
	}

	der := signature.Serialize()
	zero(priv)

	return der, pub.SerializeCompressed(), nil
}

func zero(priv *btcec.PrivateKey) {
	words := priv.D.Bits()
	for i := range words {
		words[i] = 0
	}
	priv.D.SetInt64(0)
}
