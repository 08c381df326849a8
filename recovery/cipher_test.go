// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package recovery

import "testing"

func TestCipherIsAPermutationOfTheAlphabet(t *testing.T) {
	c, err := NewCipher()
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	seen := make(map[byte]bool)
	for _, b := range []byte(c.Shown()) {
		if b < 'a' || b > 'z' {
			t.Fatalf("Shown() contains non-letter byte %q", b)
		}
		if seen[b] {
			t.Fatalf("Shown() repeats letter %q", b)
		}
		seen[b] = true
	}
	if len(seen) != 26 {
		t.Fatalf("Shown() has %d distinct letters, want 26", len(seen))
	}
}

func TestCipherTranslateRoundTrips(t *testing.T) {
	c, err := NewCipher()
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	shown := c.Shown()
	for i, real := range englishAlphabet {
		got, err := c.Translate(shown[i])
		if err != nil {
			t.Fatalf("Translate(%q): %v", shown[i], err)
		}
		if got != byte(real) {
			t.Fatalf("Translate(%q) = %q, want %q", shown[i], got, real)
		}
	}
}

func TestCipherTranslateRejectsUnknownCharacter(t *testing.T) {
	c, err := NewCipher()
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	if _, err := c.Translate('0'); err == nil {
		t.Fatal("expected error for non-alphabet character")
	}
}

func TestTwoCiphersDiffer(t *testing.T) {
	// Not a statistical randomness test; just guards against NewCipher
	// degenerating into a fixed identity layout.
	var distinct bool
	first, err := NewCipher()
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := NewCipher()
		if err != nil {
			t.Fatalf("NewCipher: %v", err)
		}
		if next.Shown() != first.Shown() {
			distinct = true
			break
		}
	}
	if !distinct {
		t.Fatal("10 consecutive ciphers all produced the same layout")
	}
}
