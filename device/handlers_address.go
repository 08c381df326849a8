// GetAddress/GetPublicKey/SignMessage/VerifyMessage handlers
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
	"github.com/usbarmory/walletfw/signing/ethereum"
)

func (d *Device) handleGetAddress(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeGetAddress(payload)
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

		child, err := hdwallet.Derive(root, req.AddressN)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		scriptType, _ := hdwallet.CheckPath(coin, req.AddressN)

		addr, err := bitcoin.Address(child, scriptType, coin)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		if !req.ShowDisplay {
			return message.TypeAddress, (&message.Address{Address: addr}).Encode()
		}

		return d.async(func() (message.Type, []byte) {
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestAddress, addr)
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "address not confirmed"}).Encode()
			}
			return message.TypeAddress, (&message.Address{Address: addr}).Encode()
		})
	})
}

func (d *Device) handleGetPublicKey(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeGetPublicKey(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		root, err := d.root()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.NotInitialized, Message: err.Error()}).Encode()
		}

		child, err := hdwallet.Derive(root, req.AddressN)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		pub, err := child.Neuter()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		if !req.ShowDisplay {
			return message.TypePublicKey, (&message.PublicKey{XPub: pub.String()}).Encode()
		}

		return d.async(func() (message.Type, []byte) {
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestPublicKey, pub.String())
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "public key not confirmed"}).Encode()
			}
			return message.TypePublicKey, (&message.PublicKey{XPub: pub.String()}).Encode()
		})
	})
}

func (d *Device) handleSignMessage(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeSignMessage(payload)
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

		return d.async(func() (message.Type, []byte) {
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestOther, "sign message?")
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "message not confirmed"}).Encode()
			}

			addr, sig, err := bitcoin.SignMessage(root, req.AddressN, coin, req.Message)
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}

			return message.TypeMessageSignature, (&message.MessageSignature{Address: addr, Signature: sig}).Encode()
		})
	})
}

func (d *Device) handleVerifyMessage(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeVerifyMessage(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	coin, ok := hdwallet.Lookup(req.CoinName)
	if !ok {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: fmt.Sprintf("unknown coin %q", req.CoinName)}).Encode()
	}

	if !bitcoin.VerifyMessage(req.Address, req.Signature, req.Message, coin) {
		return message.TypeFailure, (&message.Failure{Code: message.InvalidSignature, Message: "signature does not match"}).Encode()
	}

	return message.TypeSuccess, (&message.Success{Message: "Message verified"}).Encode()
}

func (d *Device) handleEthereumGetAddress(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeEthereumGetAddress(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		root, err := d.root()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.NotInitialized, Message: err.Error()}).Encode()
		}

		child, err := hdwallet.Derive(root, req.AddressN)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		addr, err := ethereum.Address(child)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		if !req.ShowDisplay {
			return message.TypeEthereumAddress, (&message.EthereumAddress{Address: addr}).Encode()
		}

		return d.async(func() (message.Type, []byte) {
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestAddress, addr)
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "address not confirmed"}).Encode()
			}
			return message.TypeEthereumAddress, (&message.EthereumAddress{Address: addr}).Encode()
		})
	})
}

func (d *Device) handleEthereumSignMessage(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeEthereumSignMessage(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		root, err := d.root()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.NotInitialized, Message: err.Error()}).Encode()
		}

		return d.async(func() (message.Type, []byte) {
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestOther, "sign message?")
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "message not confirmed"}).Encode()
			}

			addr, sig, err := ethereum.SignMessage(root, req.AddressN, req.Message)
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}

			return message.TypeEthereumMessageSignature, (&message.EthereumMessageSignature{Address: addr, Signature: sig}).Encode()
		})
	})
}

func (d *Device) handleEthereumVerifyMessage(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeEthereumVerifyMessage(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	if !ethereum.VerifyMessage(req.Address, req.Signature, req.Message) {
		return message.TypeFailure, (&message.Failure{Code: message.InvalidSignature, Message: "signature does not match"}).Encode()
	}

	return message.TypeSuccess, (&message.Success{Message: "Message verified"}).Encode()
}
