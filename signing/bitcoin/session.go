// Interactive TxRequest/TxAck signing session
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
	"hash"

	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/signing/exchange"
)

// phase tracks progress through the two-pass protocol of spec §4.8:
// INIT -> REQUEST_INPUT(i)... -> REQUEST_OUTPUT(j)... -> HASH_FINALIZE ->
// SIGN_EACH_INPUT -> DONE | FAILED.
type phase int

const (
	phaseInputsPass1 phase = iota
	phaseOutputs
	phaseInputsPass2
	phaseDone
	phaseFailed
)

// Confirm is called once per non-change output and once per exchange
// contract, with a human-readable description of what is being approved;
// it returns false if the user declined (spec §4.8 "requires explicit
// confirmation").
type Confirm func(prompt string) (bool, error)

// FormatAmount renders a coin's smallest unit as a decimal string for the
// confirmation prompt (coin-specific unit formatting, spec §4.8).
type FormatAmount func(coin hdwallet.Coin, amount uint64) string

// MaxMoney bounds any single output or the input sum, standing in for
// the coin's consensus supply cap (spec §4.8 "individual output >
// MAX_MONEY").
const MaxMoney = 21_000_000 * 100_000_000

// Session drives one SignTx interaction. It never holds more than one
// input or output in memory at a time (spec §4.8: "does not hold all
// inputs in memory; each is processed and discarded").
type Session struct {
	coin hdwallet.Coin
	root *hdkeychain.ExtendedKey

	inputsCount  uint32
	outputsCount uint32
	lockTime     uint32
	version      uint32

	phase phase
	idx   uint32

	hasher hash.Hash
	sumIn  uint64
	sumOut uint64

	accountPath []uint32 // from the first input seen, for change detection

	confirm Confirm
	format  FormatAmount
}

// NewSession validates the SignTx preamble (spec §4.8's "reject
// inputs_count < 1, outputs_count < 1, or arithmetic overflow") and
// returns a fresh Session ready to drive the first TxRequest.
func NewSession(coin hdwallet.Coin, root *hdkeychain.ExtendedKey, sigTx *message.SignTx, confirm Confirm, format FormatAmount) (*Session, error) {
	if sigTx.InputsCount < 1 {
		return nil, fmt.Errorf("bitcoin: inputs_count must be >= 1")
	}
	if sigTx.OutputsCount < 1 {
		return nil, fmt.Errorf("bitcoin: outputs_count must be >= 1")
	}
	total := uint64(sigTx.InputsCount) + uint64(sigTx.OutputsCount)
	if total < uint64(sigTx.InputsCount) || total > 1<<32 {
		return nil, fmt.Errorf("bitcoin: inputs+outputs overflow")
	}

	sess := &Session{
		coin:         coin,
		root:         root,
		inputsCount:  sigTx.InputsCount,
		outputsCount: sigTx.OutputsCount,
		lockTime:     sigTx.LockTime,
		version:      sigTx.Version,
		phase:        phaseInputsPass1,
		hasher:       sha256.New(),
		confirm:      confirm,
		format:       format,
	}

	var vl [8]byte
	binary.BigEndian.PutUint32(vl[:4], sigTx.Version)
	binary.BigEndian.PutUint32(vl[4:], sigTx.LockTime)
	sess.hasher.Write(vl[:])

	return sess, nil
}

// Start returns the first TxRequest the device sends to the host.
func (s *Session) Start() (message.Type, []byte) {
	return message.TypeTxRequest, (&message.TxRequest{RequestType: message.TxRequestInput, RequestIndex: 0}).Encode()
}

// HandleAck advances the session with the host's answer to the last
// TxRequest. It returns the next message to send; done is true once the
// session has reached DONE or FAILED and must not be driven further.
func (s *Session) HandleAck(ack *message.TxAck) (replyType message.Type, replyPayload []byte, done bool) {
	switch s.phase {
	case phaseInputsPass1:
		return s.handleInputPass1(ack)
	case phaseOutputs:
		return s.handleOutput(ack)
	case phaseInputsPass2:
		return s.handleInputPass2(ack)
	}
	return s.fail("unexpected ack outside active phase")
}

func (s *Session) fail(msg string) (message.Type, []byte, bool) {
	s.phase = phaseFailed
	return message.TypeFailure, (&message.Failure{Code: message.Other, Message: msg}).Encode(), true
}

func (s *Session) handleInputPass1(ack *message.TxAck) (message.Type, []byte, bool) {
	if ack.Input == nil {
		return s.fail("expected input ack")
	}
	in := ack.Input

	if len(s.accountPath) == 0 && len(in.AddressN) > 0 {
		s.accountPath = in.AddressN
	}

	if in.Amount > MaxMoney {
		return s.fail("input amount exceeds MAX_MONEY")
	}
	s.sumIn += in.Amount

	s.hasher.Write(in.PrevHash)
	s.hasher.Write([]byte(in.ScriptType))

	s.idx++
	if s.idx < s.inputsCount {
		return message.TypeTxRequest, (&message.TxRequest{RequestType: message.TxRequestInput, RequestIndex: s.idx}).Encode(), false
	}

	s.phase = phaseOutputs
	s.idx = 0
	return message.TypeTxRequest, (&message.TxRequest{RequestType: message.TxRequestOutput, RequestIndex: 0}).Encode(), false
}

func (s *Session) handleOutput(ack *message.TxAck) (message.Type, []byte, bool) {
	if ack.Output == nil {
		return s.fail("expected output ack")
	}
	out := ack.Output

	if out.Amount > MaxMoney {
		return s.fail("output amount exceeds MAX_MONEY")
	}
	s.sumOut += out.Amount
	if s.sumOut > s.sumIn {
		return s.fail("output total exceeds input total")
	}

	isChange := len(out.AddressN) > 0 && hdwallet.IsChangePath(s.accountPath, out.AddressN)

	if out.Exchange != nil {
		ok, reason := exchange.Validate(out.Exchange, out.Address, out.Amount, s.root)
		if !ok {
			return s.fail("exchange contract: " + reason)
		}
		prompt := fmt.Sprintf("exchange %s %s -> %s %s at %d%% to account #%d",
			s.format(s.coin, out.Exchange.DepositAmount), s.coin.Name,
			s.format(s.coin, out.Exchange.WithdrawalAmount), out.Exchange.WithdrawalCoin,
			out.Exchange.QuotedRatePercent, out.Exchange.AccountNumber)
		confirmed, err := s.confirm(prompt)
		if err != nil || !confirmed {
			return s.fail("exchange contract not confirmed")
		}
	} else if !isChange {
		prompt := fmt.Sprintf("send %s %s to %s", s.format(s.coin, out.Amount), s.coin.Name, out.Address)
		confirmed, err := s.confirm(prompt)
		if err != nil || !confirmed {
			return s.fail("output not confirmed")
		}
	}

	s.hasher.Write([]byte(out.Address))

	s.idx++
	if s.idx < s.outputsCount {
		return message.TypeTxRequest, (&message.TxRequest{RequestType: message.TxRequestOutput, RequestIndex: s.idx}).Encode(), false
	}

	s.phase = phaseInputsPass2
	s.idx = 0
	return message.TypeTxRequest, (&message.TxRequest{RequestType: message.TxRequestInput, RequestIndex: 0}).Encode(), false
}

func (s *Session) handleInputPass2(ack *message.TxAck) (message.Type, []byte, bool) {
	if ack.Input == nil {
		return s.fail("expected input ack")
	}
	in := ack.Input

	var commitment [32]byte
	copy(commitment[:], commitHash(s.hasher))

	sighash := Sighash(commitment, *in)

	sig, pubkey, err := SignInput(s.root, in.AddressN, sighash)
	if err != nil {
		return s.fail(err.Error())
	}

	reply := &message.TxRequest{
		RequestType:    message.TxRequestInputSig,
		RequestIndex:   s.idx,
		SignatureIndex: s.idx,
		Signature:      sig,
		SerializedTx:   pubkey,
	}

	s.idx++
	if s.idx < s.inputsCount {
		return message.TypeTxRequest, reply.Encode(), false
	}

	s.phase = phaseDone
	return message.TypeTxRequest, reply.Encode(), true
}

// commitHash finalizes the streaming SHA-256 into the double-hashed
// commitment of spec §4.8's "hash finalize" step.
func commitHash(h hash.Hash) []byte {
	first := h.Sum(nil)
	out := sha256.Sum256(first)
	return out[:]
}
