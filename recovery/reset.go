// On-device entropy generation and mnemonic reset
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package recovery implements the supplemented ResetDevice/RecoveryDevice
// flows (see SPEC_FULL.md), carried over from
// original_source/keepkey/local/baremetal/reset.c and
// recovery_cipher.c: on-device mnemonic generation mixed with
// host-contributed entropy, and re-entering an existing mnemonic either
// word by word or through a randomized character-entry cipher.
package recovery

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/tyler-smith/go-bip39"

	"github.com/usbarmory/walletfw/message"
)

// ResetSession drives one ResetDevice/EntropyAck exchange.
type ResetSession struct {
	strengthBits uint32
	intEntropy   [32]byte
	done         bool
}

// NewResetSession validates req and generates the device's half of the
// entropy mix via crypto/rand (reset.c's reset_init: "uint8_t
// int_entropy[32]; random_buffer(int_entropy, 32)").
func NewResetSession(req *message.ResetDevice) (*ResetSession, error) {
	switch req.StrengthBits {
	case 128, 192, 256:
	default:
		return nil, fmt.Errorf("recovery: invalid strength %d bits, want 128, 192 or 256", req.StrengthBits)
	}

	s := &ResetSession{strengthBits: req.StrengthBits}
	if _, err := rand.Read(s.intEntropy[:]); err != nil {
		return nil, fmt.Errorf("recovery: generate internal entropy: %w", err)
	}

	return s, nil
}

// Start returns the EntropyRequest asking the host to contribute its own
// entropy before the mnemonic is derived.
func (s *ResetSession) Start() (message.Type, []byte) {
	return message.TypeEntropyRequest, (&message.EntropyRequest{}).Encode()
}

// Finalize mixes ack's host-contributed entropy into the device's
// internally generated entropy and derives the resulting mnemonic. The
// mix is a single SHA-256 over the concatenation of the two entropy
// sources, not a byte-wise XOR (reset.c's reset_entropy: "sha256_Raw(
// int_entropy, 32 + extra_entropy_len, int_entropy)" run over a buffer
// holding int_entropy immediately followed by the host's bytes).
func (s *ResetSession) Finalize(ack *message.EntropyAck) (mnemonic string, err error) {
	if s.done {
		return "", fmt.Errorf("recovery: reset session already finalized")
	}
	s.done = true

	h := sha256.New()
	h.Write(s.intEntropy[:])
	h.Write(ack.Entropy)
	mixed := h.Sum(nil)
	zero(s.intEntropy[:])

	n := s.strengthBits / 8
	mnemonic, err = bip39.NewMnemonic(mixed[:n])
	if err != nil {
		return "", fmt.Errorf("recovery: derive mnemonic: %w", err)
	}

	return mnemonic, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
