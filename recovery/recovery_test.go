// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package recovery

import (
	"testing"

	"github.com/usbarmory/walletfw/message"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestWordSessionRejectsBadWordCount(t *testing.T) {
	if _, err := NewWordSession(&message.RecoveryDevice{WordCount: 13}); err == nil {
		t.Fatal("expected error for invalid word count")
	}
}

func TestWordSessionPlainModeValidMnemonic(t *testing.T) {
	s, err := NewWordSession(&message.RecoveryDevice{WordCount: 12, EnforceWordlist: true})
	if err != nil {
		t.Fatalf("NewWordSession: %v", err)
	}

	typ, _ := s.Start()
	if typ != message.TypeWordRequest {
		t.Fatalf("Start() typ = %v, want TypeWordRequest", typ)
	}

	words := []string{"abandon", "abandon", "abandon", "abandon", "abandon", "abandon",
		"abandon", "abandon", "abandon", "abandon", "abandon", "about"}

	var done bool
	for i, w := range words {
		typ, _, d := s.HandleWordAck(&message.WordAck{Word: w})
		done = d
		if i < len(words)-1 {
			if typ != message.TypeWordRequest || done {
				t.Fatalf("word %d: typ=%v done=%v, want WordRequest/false", i, typ, done)
			}
		} else {
			if typ != message.TypeSuccess || !done {
				t.Fatalf("final word: typ=%v done=%v, want Success/true", typ, done)
			}
		}
	}

	mnemonic, ok := s.Mnemonic()
	if !ok || mnemonic != testMnemonic {
		t.Fatalf("Mnemonic() = %q, %v, want %q, true", mnemonic, ok, testMnemonic)
	}
}

func TestWordSessionPlainModeRejectsBadChecksum(t *testing.T) {
	s, err := NewWordSession(&message.RecoveryDevice{WordCount: 12, EnforceWordlist: true})
	if err != nil {
		t.Fatalf("NewWordSession: %v", err)
	}

	words := []string{"zoo", "zoo", "zoo", "zoo", "zoo", "zoo", "zoo", "zoo", "zoo", "zoo", "zoo", "zoo"}

	var typ message.Type
	var done bool
	for _, w := range words {
		typ, _, done = s.HandleWordAck(&message.WordAck{Word: w})
	}

	if !done || typ != message.TypeFailure {
		t.Fatalf("bad checksum: typ=%v done=%v, want Failure/true", typ, done)
	}
	if _, ok := s.Mnemonic(); ok {
		t.Fatal("Mnemonic() ok=true after a failed recovery")
	}
}

func TestWordSessionCipherModeRoundTrips(t *testing.T) {
	s, err := NewWordSession(&message.RecoveryDevice{WordCount: 12, EnforceWordlist: true, UseCharacterCipher: true})
	if err != nil {
		t.Fatalf("NewWordSession: %v", err)
	}

	typ, _ := s.Start()
	if typ != message.TypeCharacterRequest {
		t.Fatalf("Start() typ = %v, want TypeCharacterRequest", typ)
	}

	words := []string{"abandon", "abandon", "abandon", "abandon", "abandon", "abandon",
		"abandon", "abandon", "abandon", "abandon", "abandon", "about"}

	var finalTyp message.Type
	var done bool

	for wi, w := range words {
		for _, ch := range w {
			shown := s.cipher.shown
			var scrambled byte
			for i, real := range englishAlphabet {
				if byte(real) == byte(ch) {
					scrambled = shown[i]
					break
				}
			}
			typ, _, d := s.HandleCharacterAck(&message.CharacterAck{Character: string(scrambled)})
			if d {
				t.Fatalf("word %d char %q: unexpectedly done", wi, ch)
			}
			if typ != message.TypeCharacterRequest {
				t.Fatalf("word %d char %q: typ=%v, want CharacterRequest", wi, ch, typ)
			}
		}
		finalTyp, _, done = s.HandleCharacterFinalAck()
	}

	if !done || finalTyp != message.TypeSuccess {
		t.Fatalf("final: typ=%v done=%v, want Success/true", finalTyp, done)
	}

	mnemonic, ok := s.Mnemonic()
	if !ok || mnemonic != testMnemonic {
		t.Fatalf("Mnemonic() = %q, %v, want %q, true", mnemonic, ok, testMnemonic)
	}
}

func TestWordSessionCipherModeDeleteCrossesWordBoundary(t *testing.T) {
	s, err := NewWordSession(&message.RecoveryDevice{WordCount: 12, UseCharacterCipher: true})
	if err != nil {
		t.Fatalf("NewWordSession: %v", err)
	}

	typeChar := func(real byte) {
		shown := s.cipher.shown
		var scrambled byte
		for i, r := range englishAlphabet {
			if byte(r) == real {
				scrambled = shown[i]
				break
			}
		}
		s.HandleCharacterAck(&message.CharacterAck{Character: string(scrambled)})
	}

	typeChar('a')
	typeChar('b')
	s.HandleCharacterFinalAck() // word boundary: "ab "
	typeChar('c')

	if got := string(s.mnemonic); got != "ab c" {
		t.Fatalf("mnemonic = %q, want %q", got, "ab c")
	}
	if s.wordsDone != 1 {
		t.Fatalf("wordsDone = %d, want 1", s.wordsDone)
	}

	s.HandleCharacterDeleteAck() // remove 'c'
	s.HandleCharacterDeleteAck() // remove the boundary space, back into word 1

	if got := string(s.mnemonic); got != "ab" {
		t.Fatalf("mnemonic after deletes = %q, want %q", got, "ab")
	}
	if s.wordsDone != 0 {
		t.Fatalf("wordsDone after crossing back = %d, want 0", s.wordsDone)
	}
}

func TestWordSessionModeMismatchFails(t *testing.T) {
	s, err := NewWordSession(&message.RecoveryDevice{WordCount: 12, UseCharacterCipher: true})
	if err != nil {
		t.Fatalf("NewWordSession: %v", err)
	}

	typ, _, done := s.HandleWordAck(&message.WordAck{Word: "abandon"})
	if !done || typ != message.TypeFailure {
		t.Fatalf("WordAck in cipher-mode session: typ=%v done=%v, want Failure/true", typ, done)
	}
}
