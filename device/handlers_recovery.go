// ResetDevice/RecoveryDevice handlers: on-device entropy reset and
// word/character mnemonic re-entry
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/recovery"
	"github.com/usbarmory/walletfw/storage"
)

func (d *Device) handleResetDevice(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeResetDevice(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.async(func() (message.Type, []byte) {
		confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestResetDevice, "create new wallet?")
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		if abandoned {
			return 0, nil
		}
		if !confirmed {
			return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "reset not confirmed"}).Encode()
		}

		sess, err := recovery.NewResetSession(req)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		d.mu.Lock()
		d.resetSession = sess
		d.pendingResetLabel = req.Label
		d.pendingResetPassphrase = req.PassphraseProtection
		d.mu.Unlock()

		typ, p := sess.Start()
		return typ, p
	})
}

func (d *Device) handleEntropyAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodeEntropyAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	d.mu.Lock()
	sess := d.resetSession
	label := d.pendingResetLabel
	passphrase := d.pendingResetPassphrase
	d.resetSession = nil
	d.pendingResetLabel = ""
	d.pendingResetPassphrase = false
	d.mu.Unlock()

	if sess == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no ResetDevice session active"}).Encode()
	}

	mnemonic, err := sess.Finalize(ack)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	if err := d.store.Mutate(func(r *storage.Record) error {
		if err := r.SetMnemonic(mnemonic); err != nil {
			return err
		}
		r.SetPassphraseProtection(passphrase)
		r.SetImported(false)
		if label != "" {
			return r.SetLabel(label)
		}
		return nil
	}); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	if err := d.store.Commit(); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	d.cache.Clear()
	d.mu.Lock()
	d.pinUnlocked = true
	d.mu.Unlock()

	return message.TypeSuccess, (&message.Success{Message: "Device reset"}).Encode()
}

func (d *Device) handleRecoveryDevice(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeRecoveryDevice(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.async(func() (message.Type, []byte) {
		confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestMnemonicWordCount, "recover existing wallet?")
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		if abandoned {
			return 0, nil
		}
		if !confirmed {
			return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "recovery not confirmed"}).Encode()
		}

		sess, err := recovery.NewWordSession(req)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		d.mu.Lock()
		d.wordSession = sess
		d.pendingResetLabel = req.Label
		d.pendingResetPassphrase = req.PassphraseProtection
		d.mu.Unlock()

		typ, p := sess.Start()
		return typ, p
	})
}

func (d *Device) handleWordAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodeWordAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}
	return d.driveRecovery(func(sess *recovery.WordSession) (message.Type, []byte, bool) {
		return sess.HandleWordAck(ack)
	})
}

func (d *Device) handleCharacterAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodeCharacterAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}
	return d.driveRecovery(func(sess *recovery.WordSession) (message.Type, []byte, bool) {
		return sess.HandleCharacterAck(ack)
	})
}

func (d *Device) handleCharacterDeleteAck(payload []byte) (message.Type, []byte) {
	return d.driveRecovery(func(sess *recovery.WordSession) (message.Type, []byte, bool) {
		return sess.HandleCharacterDeleteAck()
	})
}

func (d *Device) handleCharacterFinalAck(payload []byte) (message.Type, []byte) {
	return d.driveRecovery(func(sess *recovery.WordSession) (message.Type, []byte, bool) {
		return sess.HandleCharacterFinalAck()
	})
}

// driveRecovery runs one step of the active word/character recovery
// session and, once it reports done, commits the recovered mnemonic to
// storage under the label/passphrase policy captured at RecoveryDevice
// time.
func (d *Device) driveRecovery(step func(*recovery.WordSession) (message.Type, []byte, bool)) (message.Type, []byte) {
	d.mu.Lock()
	sess := d.wordSession
	label := d.pendingResetLabel
	passphrase := d.pendingResetPassphrase
	d.mu.Unlock()

	if sess == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no RecoveryDevice session active"}).Encode()
	}

	typ, p, done := step(sess)
	if !done {
		return typ, p
	}

	d.mu.Lock()
	d.wordSession = nil
	d.pendingResetLabel = ""
	d.pendingResetPassphrase = false
	d.mu.Unlock()

	if typ != message.TypeSuccess {
		return typ, p
	}

	mnemonic, ok := sess.Mnemonic()
	if !ok {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: "recovery finished without a mnemonic"}).Encode()
	}

	if err := d.store.Mutate(func(r *storage.Record) error {
		if err := r.SetMnemonic(mnemonic); err != nil {
			return err
		}
		r.SetPassphraseProtection(passphrase)
		r.SetImported(true)
		if label != "" {
			return r.SetLabel(label)
		}
		return nil
	}); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	if err := d.store.Commit(); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	d.cache.Clear()
	d.mu.Lock()
	d.pinUnlocked = true
	d.mu.Unlock()

	return typ, p
}
