// Ethereum interactive signing session
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ethereum

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
)

// Confirm asks the user to approve the decoded transaction summary.
type Confirm func(prompt string) (bool, error)

// Session drives one EthereumSignTx interaction (spec §4.8: "runs in the
// same engine with a different hashing pipeline"). Unlike bitcoin.Session
// there is no two-pass request/ack dance over inputs/outputs: all fixed
// fields arrive in the initial message, and only an oversize Data field
// streams via additional EthereumTxAck chunks.
type Session struct {
	root    *hdkeychain.ExtendedKey
	req     *message.EthereumSignTx
	data    []byte
	want    uint32
	confirm Confirm
}

// NewSession validates the initial EthereumSignTx and begins collecting
// any additional data chunks it declares.
func NewSession(root *hdkeychain.ExtendedKey, req *message.EthereumSignTx, confirm Confirm) (*Session, error) {
	if len(req.AddressN) == 0 {
		return nil, fmt.Errorf("ethereum: address_n required")
	}

	s := &Session{root: root, req: req, confirm: confirm}
	s.data = append(s.data, req.Data...)
	s.want = req.DataLength

	return s, nil
}

// NeedsMoreData reports whether the engine is still waiting on
// EthereumTxAck chunks before it can finalize and sign.
func (s *Session) NeedsMoreData() bool {
	return uint32(len(s.data)) < s.want
}

// AddChunk appends one EthereumTxAck's data chunk.
func (s *Session) AddChunk(chunk []byte) {
	s.data = append(s.data, chunk...)
}

// Finalize builds the RLP commitment, confirms with the user, signs with
// EIP-155 replay protection, and returns the (v, r, s) signature packed as
// 65 bytes (r[32] || s[32] || v[1]).
func (s *Session) Finalize() (sig []byte, err error) {
	to := fmt.Sprintf("0x%x", s.req.To)
	value := new(big.Int).SetBytes(s.req.Value)
	prompt := fmt.Sprintf("send %s wei to %s", value.String(), to)

	ok, cerr := s.confirm(prompt)
	if cerr != nil || !ok {
		return nil, fmt.Errorf("ethereum: transaction not confirmed")
	}

	chainID := s.req.ChainID

	var fields [][]byte
	fields = append(fields,
		rlpEncodeBytes(s.req.Nonce),
		rlpEncodeBytes(s.req.GasPrice),
		rlpEncodeBytes(s.req.GasLimit),
		rlpEncodeBytes(s.req.To),
		rlpEncodeBytes(s.req.Value),
		rlpEncodeBytes(s.data),
	)
	if chainID != 0 {
		fields = append(fields,
			rlpEncodeBytes(big.NewInt(int64(chainID)).Bytes()),
			rlpEncodeBytes(nil),
			rlpEncodeBytes(nil),
		)
	}

	encoded := rlpEncodeList(fields...)
	digest := Keccak256(encoded)

	child, err := hdwallet.Derive(s.root, s.req.AddressN)
	if err != nil {
		return nil, fmt.Errorf("ethereum: derive signing key: %w", err)
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("ethereum: extract private key: %w", err)
	}

	compact, err := btcec.SignCompact(btcec.S256(), priv, digest, false)
	if err != nil {
		return nil, fmt.Errorf("ethereum: sign digest: %w", err)
	}

	// btcec's compact format is (recoveryID+27) || r || s; Ethereum wants
	// r || s || v with v = 27 + recovery (+ 2*chainID + 35 under EIP-155).
	recID := compact[0] - 27
	out := make([]byte, 65)
	copy(out[0:32], compact[1:33])
	copy(out[32:64], compact[33:65])

	v := uint64(recID) + 27
	if chainID != 0 {
		v = uint64(recID) + 2*chainID + 35 // EIP-155
	}
	out[64] = byte(v)

	zero(priv)

	return out, nil
}

func zero(priv *btcec.PrivateKey) {
	words := priv.D.Bits()
	for i := range words {
		words[i] = 0
	}
	priv.D.SetInt64(0)
}
