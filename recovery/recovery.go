// Mnemonic re-entry: word-by-word and character-cipher modes
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package recovery

import (
	"fmt"
	"strings"

	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
)

// WordSession drives one RecoveryDevice interaction, in either of its two
// host-entry modes. Plain mode collects WordCount whole words
// (WordRequest/WordAck); character-cipher mode collects the mnemonic one
// scrambled letter at a time (CharacterRequest/CharacterAck/
// CharacterDeleteAck/CharacterFinalAck), grounded on
// original_source/keepkey/local/baremetal/recovery_cipher.c: a single
// running mnemonic string is appended to directly as each character is
// decoded, word boundaries are plain spaces, and WordPos/CharPos in
// CharacterRequest are display hints only, not state-machine drivers.
type WordSession struct {
	wordCount       uint32
	enforceWordlist bool
	useCipher       bool

	words     []string
	mnemonic  []byte
	wordsDone uint32
	cipher    *Cipher

	done   bool
	result string
}

// NewWordSession validates req and, in character-cipher mode, generates
// the first cipher layout.
func NewWordSession(req *message.RecoveryDevice) (*WordSession, error) {
	switch req.WordCount {
	case 12, 18, 24:
	default:
		return nil, fmt.Errorf("recovery: invalid word count %d, want 12, 18 or 24", req.WordCount)
	}

	s := &WordSession{
		wordCount:       req.WordCount,
		enforceWordlist: req.EnforceWordlist,
		useCipher:       req.UseCharacterCipher,
	}

	if s.useCipher {
		c, err := NewCipher()
		if err != nil {
			return nil, err
		}
		s.cipher = c
	}

	return s, nil
}

// Start returns the first host prompt for the session's mode.
func (s *WordSession) Start() (message.Type, []byte) {
	if s.useCipher {
		return message.TypeCharacterRequest, (&message.CharacterRequest{WordPos: 1, CharPos: 1}).Encode()
	}
	return message.TypeWordRequest, (&message.WordRequest{}).Encode()
}

// HandleWordAck appends one whole word in plain word-by-word mode.
func (s *WordSession) HandleWordAck(ack *message.WordAck) (message.Type, []byte, bool) {
	if s.useCipher || s.done {
		return s.fail("word entry is not active for this recovery session")
	}

	s.words = append(s.words, ack.Word)
	if uint32(len(s.words)) < s.wordCount {
		return message.TypeWordRequest, (&message.WordRequest{}).Encode(), false
	}

	return s.finish(strings.Join(s.words, " "))
}

// HandleCharacterAck decodes one scrambled character back through the
// current cipher layout and appends it to the running mnemonic buffer,
// then regenerates the layout for the next character (recovery_cipher.c
// shuffles on every entry, including deletions).
func (s *WordSession) HandleCharacterAck(ack *message.CharacterAck) (message.Type, []byte, bool) {
	if !s.useCipher || s.done {
		return s.fail("character entry is not active for this recovery session")
	}
	if len(ack.Character) != 1 {
		return s.fail("character ack must carry exactly one letter")
	}

	real, err := s.cipher.Translate(ack.Character[0])
	if err != nil {
		return s.fail("character not present in the current cipher layout")
	}
	s.mnemonic = append(s.mnemonic, real)

	return s.nextCharacter()
}

// HandleCharacterDeleteAck removes the last decoded character, which may
// cross back over a word boundary space.
func (s *WordSession) HandleCharacterDeleteAck() (message.Type, []byte, bool) {
	if !s.useCipher || s.done {
		return s.fail("character entry is not active for this recovery session")
	}
	if len(s.mnemonic) > 0 {
		if s.mnemonic[len(s.mnemonic)-1] == ' ' && s.wordsDone > 0 {
			s.wordsDone--
		}
		s.mnemonic = s.mnemonic[:len(s.mnemonic)-1]
	}

	return s.nextCharacter()
}

// HandleCharacterFinalAck closes out the current word with a separating
// space; once WordCount words have been closed this way, the whole
// mnemonic is validated and the session finishes.
func (s *WordSession) HandleCharacterFinalAck() (message.Type, []byte, bool) {
	if !s.useCipher || s.done {
		return s.fail("character entry is not active for this recovery session")
	}

	s.mnemonic = append(s.mnemonic, ' ')
	s.wordsDone++

	if s.wordsDone < s.wordCount {
		return s.nextCharacter()
	}

	return s.finish(strings.TrimSpace(string(s.mnemonic)))
}

func (s *WordSession) nextCharacter() (message.Type, []byte, bool) {
	c, err := NewCipher()
	if err != nil {
		return s.fail(err.Error())
	}
	s.cipher = c

	return message.TypeCharacterRequest, (&message.CharacterRequest{
		WordPos: s.wordsDone + 1,
		CharPos: s.charPos(),
	}).Encode(), false
}

// charPos is a display hint: the 1-based offset into the current word.
func (s *WordSession) charPos() uint32 {
	if idx := strings.LastIndexByte(string(s.mnemonic), ' '); idx >= 0 {
		return uint32(len(s.mnemonic) - idx)
	}
	return uint32(len(s.mnemonic)) + 1
}

func (s *WordSession) finish(mnemonic string) (message.Type, []byte, bool) {
	s.done = true

	if s.enforceWordlist && !hdwallet.ValidateMnemonic(mnemonic) {
		return message.TypeFailure, (&message.Failure{Code: message.SyntaxError, Message: "invalid mnemonic"}).Encode(), true
	}

	s.result = mnemonic
	return message.TypeSuccess, (&message.Success{Message: "Device recovered"}).Encode(), true
}

func (s *WordSession) fail(msg string) (message.Type, []byte, bool) {
	s.done = true
	return message.TypeFailure, (&message.Failure{Code: message.UnexpectedMessage, Message: msg}).Encode(), true
}

// Mnemonic returns the recovered mnemonic text. ok is false until a
// Handle* call has returned done=true with a TypeSuccess reply.
func (s *WordSession) Mnemonic() (mnemonic string, ok bool) {
	return s.result, s.result != ""
}
