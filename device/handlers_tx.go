// SignTx/TxAck handlers: Bitcoin, Ethereum and Cosmos signing sessions
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/signing/bitcoin"
	"github.com/usbarmory/walletfw/signing/cosmos"
	"github.com/usbarmory/walletfw/signing/ethereum"
)

// txConfirm satisfies bitcoin.Confirm, blocking on the button-hold
// protocol; safe only from the handleTxAck worker goroutine, never the
// frame pump.
func (d *Device) txConfirm(prompt string) (bool, error) {
	confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestSignTx, prompt)
	if err != nil {
		return false, err
	}
	if abandoned {
		return false, fmt.Errorf("device: signing abandoned by a host Initialize")
	}
	return confirmed, nil
}

func (d *Device) ethConfirm(prompt string) (bool, error) {
	return d.txConfirm(prompt)
}

func (d *Device) cosmosConfirm(idx uint32, msgJSON []byte) (bool, error) {
	return d.txConfirm(fmt.Sprintf("sign message #%d: %s", idx, msgJSON))
}

func (d *Device) handleSignTx(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeSignTx(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		coin, ok := hdwallet.Lookup(req.CoinName)
		if !ok {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: fmt.Sprintf("unknown coin %q", req.CoinName)}).Encode()
		}

		root, err := d.root()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.NotInitialized, Message: err.Error()}).Encode()
		}

		sess, err := bitcoin.NewSession(coin, root, req, d.txConfirm, formatAmount)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		d.mu.Lock()
		d.txSession = sess
		d.mu.Unlock()

		typ, p := sess.Start()
		return typ, p
	})
}

func (d *Device) handleTxAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodeTxAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	d.mu.Lock()
	sess := d.txSession
	d.mu.Unlock()

	if sess == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no SignTx session active"}).Encode()
	}

	return d.async(func() (message.Type, []byte) {
		typ, p, done := sess.HandleAck(ack)
		if done {
			d.mu.Lock()
			d.txSession = nil
			d.mu.Unlock()
		}
		return typ, p
	})
}

func (d *Device) handleEstimateTxSize(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeEstimateTxSize(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	size := bitcoin.EstimateVirtualSize(req.InputsCount, req.OutputsCount)
	return message.TypeTxSize, (&message.TxSize{VirtualSize: size}).Encode()
}

func (d *Device) handleEthereumSignTx(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeEthereumSignTx(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		root, err := d.root()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.NotInitialized, Message: err.Error()}).Encode()
		}

		sess, err := ethereum.NewSession(root, req, d.ethConfirm)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		d.mu.Lock()
		d.ethSession = sess
		d.mu.Unlock()

		if !sess.NeedsMoreData() {
			return d.async(func() (message.Type, []byte) {
				return d.finalizeEthereum(sess)
			})
		}

		return message.TypeEthereumTxAck, nil
	})
}

func (d *Device) handleEthereumTxAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodeEthereumTxAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	d.mu.Lock()
	sess := d.ethSession
	d.mu.Unlock()

	if sess == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no EthereumSignTx session active"}).Encode()
	}

	sess.AddChunk(ack.DataChunk)
	if sess.NeedsMoreData() {
		return message.TypeEthereumTxAck, nil
	}

	return d.async(func() (message.Type, []byte) {
		return d.finalizeEthereum(sess)
	})
}

func (d *Device) finalizeEthereum(sess *ethereum.Session) (message.Type, []byte) {
	sig, err := sess.Finalize()

	d.mu.Lock()
	d.ethSession = nil
	d.mu.Unlock()

	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	return message.TypeEthereumMessageSignature, (&message.EthereumMessageSignature{Signature: sig}).Encode()
}

func (d *Device) handleCosmosSignTx(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeCosmosSignTx(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		root, err := d.root()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.NotInitialized, Message: err.Error()}).Encode()
		}

		sess, err := cosmos.NewSession(root, req, d.cosmosConfirm)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		d.mu.Lock()
		d.cosSession = sess
		d.mu.Unlock()

		typ, p := sess.Start()
		return typ, p
	})
}

func (d *Device) handleCosmosTxAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodeCosmosTxAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	d.mu.Lock()
	sess := d.cosSession
	d.mu.Unlock()

	if sess == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no CosmosSignTx session active"}).Encode()
	}

	return d.async(func() (message.Type, []byte) {
		typ, p, done := sess.HandleAck(ack)
		if done {
			d.mu.Lock()
			d.cosSession = nil
			d.mu.Unlock()
		}
		return typ, p
	})
}
