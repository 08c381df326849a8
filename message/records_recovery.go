// Device reset / mnemonic recovery records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
//
// Supplemented feature (see SPEC_FULL.md): on-device entropy generation
// and word-by-word / cipher-scrambled mnemonic recovery, carried over from
// original_source/keepkey/local/baremetal/reset.c and recovery_cipher.c.

package message

const (
	tagRecA uint8 = iota + 1
	tagRecB
	tagRecC
	tagRecD
)

// ResetDevice generates a fresh mnemonic on-device, optionally mixed with
// host-contributed entropy (original_source reset.c's entropy dance).
type ResetDevice struct {
	WordCount            uint32
	PassphraseProtection bool
	Label                string
	StrengthBits         uint32
}

func DecodeResetDevice(b []byte) (*ResetDevice, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &ResetDevice{
		WordCount:            d.Uint32(tagRecA, 12),
		PassphraseProtection: d.Bool(tagRecB, false),
		Label:                d.String(tagRecC, ""),
		StrengthBits:         d.Uint32(tagRecD, 128),
	}, nil
}

// EntropyRequest asks the host to contribute entropy for ResetDevice.
type EntropyRequest struct{}

func (m *EntropyRequest) Encode() []byte { return nil }

// EntropyAck carries the host-contributed entropy.
type EntropyAck struct {
	Entropy []byte
}

func DecodeEntropyAck(b []byte) (*EntropyAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EntropyAck{Entropy: d.BytesField(tagRecA)}, nil
}

// RecoveryDevice begins re-entering an existing mnemonic, word by word or
// via scrambled character entry.
type RecoveryDevice struct {
	WordCount            uint32
	PassphraseProtection bool
	Label                string
	EnforceWordlist      bool
	UseCharacterCipher   bool
}

func DecodeRecoveryDevice(b []byte) (*RecoveryDevice, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &RecoveryDevice{
		WordCount:            d.Uint32(tagRecA, 12),
		PassphraseProtection: d.Bool(tagRecB, false),
		Label:                d.String(tagRecC, ""),
		EnforceWordlist:      true,
		UseCharacterCipher:   d.Bool(tagRecD, false),
	}, nil
}

// WordRequest asks the host for the next mnemonic word.
type WordRequest struct{}

func (m *WordRequest) Encode() []byte { return nil }

// WordAck carries one mnemonic word from the host.
type WordAck struct {
	Word string
}

func DecodeWordAck(b []byte) (*WordAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &WordAck{Word: d.String(tagRecA, "")}, nil
}

// CharacterRequest asks the host to relay the position selected on the
// device-shown scrambled character layout (same randomized-matrix
// principle as PIN entry, spec §4.6).
type CharacterRequest struct {
	WordPos uint32
	CharPos uint32
}

func (m *CharacterRequest) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagRecA, m.WordPos)
	e.Uint32(tagRecB, m.CharPos)
	return e.Bytes()
}

// CharacterAck carries one scrambled character position.
type CharacterAck struct {
	Character string
}

func DecodeCharacterAck(b []byte) (*CharacterAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &CharacterAck{Character: d.String(tagRecA, "")}, nil
}

// CharacterDeleteAck requests the last entered character be deleted.
type CharacterDeleteAck struct{}

func (m *CharacterDeleteAck) Encode() []byte { return nil }

// CharacterFinalAck signals the current word is complete.
type CharacterFinalAck struct{}

func (m *CharacterFinalAck) Encode() []byte { return nil }
