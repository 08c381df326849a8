// Cosmos interactive signing session
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cosmos

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
)

// Confirm asks the user to approve one decoded message of the sign-doc.
type Confirm func(messageIndex uint32, messageJSON []byte) (bool, error)

// Session drives one CosmosSignTx interaction (spec §4.8: "runs in the
// same engine with a JSON canonicalization pipeline"). Like
// signing/bitcoin it streams the sign-doc into a running SHA-256 hasher
// instead of buffering the whole document, one message at a time via
// CosmosTxAck.
type Session struct {
	root    *hdkeychain.ExtendedKey
	req     *message.CosmosSignTx
	confirm Confirm
	hasher  hash.Hash
	index   uint32
	done    bool
}

// NewSession validates req and writes the sign-doc prefix into the
// running hash.
func NewSession(root *hdkeychain.ExtendedKey, req *message.CosmosSignTx, confirm Confirm) (*Session, error) {
	if len(req.AddressN) == 0 {
		return nil, fmt.Errorf("cosmos: address_n required")
	}
	if req.MsgCount == 0 {
		return nil, fmt.Errorf("cosmos: msgs_count must be > 0")
	}

	s := &Session{root: root, req: req, confirm: confirm, hasher: sha256.New()}
	s.hasher.Write([]byte(signDocPrefix(req.AccountNumber, req.ChainID, req.FeeAmount, req.FeeDenom, req.Memo)))

	return s, nil
}

// Start returns the first CosmosTxRequest, asking the host for message 0.
func (s *Session) Start() (message.Type, []byte) {
	return message.TypeCosmosTxRequest, (&message.CosmosTxRequest{MessageIndex: 0}).Encode()
}

// HandleAck consumes one streamed message fragment, confirms it with the
// user, and either asks for the next message or finalizes the signature.
// done reports whether payload is the terminal CosmosTxRequest carrying
// Signature, or a Failure.
func (s *Session) HandleAck(ack *message.CosmosTxAck) (typ message.Type, payload []byte, done bool) {
	if s.done {
		return message.TypeFailure, nil, true
	}

	if s.index > 0 {
		s.hasher.Write([]byte(","))
	}
	s.hasher.Write(ack.MessageJSON)

	if s.confirm != nil {
		ok, err := s.confirm(s.index, ack.MessageJSON)
		if err != nil || !ok {
			s.done = true
			return message.TypeFailure, nil, true
		}
	}

	s.index++

	if s.index < s.req.MsgCount {
		return message.TypeCosmosTxRequest, (&message.CosmosTxRequest{MessageIndex: s.index}).Encode(), false
	}

	return s.finalize()
}

func (s *Session) finalize() (message.Type, []byte, bool) {
	s.done = true

	s.hasher.Write([]byte(signDocSuffix(s.req.Sequence)))
	digest := s.hasher.Sum(nil)

	child, err := hdwallet.Derive(s.root, s.req.AddressN)
	if err != nil {
		return message.TypeFailure, nil, true
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return message.TypeFailure, nil, true
	}

	compact, err := btcec.SignCompact(btcec.S256(), priv, digest, true)
	zero(priv)
	if err != nil {
		return message.TypeFailure, nil, true
	}

	// Cosmos signatures are the raw 64-byte (r, s) pair, no recovery id.
	sig := compact[1:]

	req := &message.CosmosTxRequest{
		MessageIndex: s.index,
		Finished:     true,
		Signature:    sig,
	}

	return message.TypeCosmosTxRequest, req.Encode(), true
}

func zero(priv *btcec.PrivateKey) {
	words := priv.D.Bits()
	for i := range words {
		words[i] = 0
	}
	priv.D.SetInt64(0)
}
