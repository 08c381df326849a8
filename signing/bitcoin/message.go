// Bitcoin Signed Message signing/verification
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bitcoin

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
)

// messagePrefix is the fixed envelope of the "Bitcoin Signed Message"
// convention: a varstring magic followed by a varstring of the message
// itself, double-SHA256'd.
const messagePrefix = "Bitcoin Signed Message:\n"

func messageDigest(msg []byte) [32]byte {
	var buf bytes.Buffer
	writeVarString(&buf, messagePrefix)
	writeVarString(&buf, string(msg))
	first := sha256.Sum256(buf.Bytes())
	return sha256.Sum256(first[:])
}

func writeVarString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeVarInt(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		binary.Write(buf, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		binary.Write(buf, binary.LittleEndian, uint32(n))
	default:
		buf.WriteByte(0xff)
		binary.Write(buf, binary.LittleEndian, n)
	}
}

// SignMessage signs msg with the key at path using the Bitcoin Signed
// Message convention, returning the P2PKH signing address and a 65-byte
// compact recoverable signature (header || r || s).
func SignMessage(root *hdkeychain.ExtendedKey, path []uint32, coin hdwallet.Coin, msg []byte) (address string, signature []byte, err error) {
	child, err := hdwallet.Derive(root, path)
	if err != nil {
		return "", nil, fmt.Errorf("bitcoin: derive signing key: %w", err)
	}

	address, err = Address(child, hdwallet.ScriptLegacy, coin)
	if err != nil {
		return "", nil, err
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return "", nil, fmt.Errorf("bitcoin: extract private key: %w", err)
	}

	digest := messageDigest(msg)
	compact, err := btcec.SignCompact(btcec.S256(), priv, digest[:], true)
	zero(priv)
	if err != nil {
		return "", nil, fmt.Errorf("bitcoin: sign message: %w", err)
	}

	return address, compact, nil
}

// VerifyMessage checks sig against msg and the claimed P2PKH address for
// coin, recovering the signer's public key from the compact signature.
func VerifyMessage(address string, sig, msg []byte, coin hdwallet.Coin) bool {
	if len(sig) != 65 {
		return false
	}

	digest := messageDigest(msg)
	pub, _, err := btcec.RecoverCompact(btcec.S256(), sig, digest[:])
	if err != nil {
		return false
	}

	pkHash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, coin.Params)
	if err != nil {
		return false
	}

	return addr.EncodeAddress() == address
}
