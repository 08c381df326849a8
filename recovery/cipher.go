// Randomized character-entry cipher
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package recovery

import (
	"crypto/rand"
	"fmt"
)

const englishAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Cipher is one randomized a-z substitution layout shown on-device during
// RecoveryDevice's character-cipher mode, so the host only ever learns
// which scrambled letter the user selected, never the real one
// (original_source/keepkey/local/baremetal/recovery_cipher.c's
// next_character()). A fresh Cipher is generated after every character,
// including deletions, so a host logging prior selections learns nothing.
type Cipher struct {
	shown [26]byte
}

// NewCipher returns a Cipher with a-z placed via a Fisher-Yates shuffle
// seeded from crypto/rand, the same construction pin.Matrix uses for the
// PIN grid.
func NewCipher() (*Cipher, error) {
	var c Cipher
	copy(c.shown[:], englishAlphabet)

	for i := len(c.shown) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return nil, fmt.Errorf("recovery: shuffle cipher: %w", err)
		}
		c.shown[i], c.shown[j] = c.shown[j], c.shown[i]
	}

	return &c, nil
}

func randIndex(n int) (int, error) {
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if int(b[0]) < 256-(256%n) {
			return int(b[0]) % n, nil
		}
	}
}

// Shown returns the scrambled a-z layout displayed on-device.
func (c *Cipher) Shown() string {
	return string(c.shown[:])
}

// Translate maps one shown (scrambled) character back to its real letter.
func (c *Cipher) Translate(shown byte) (byte, error) {
	for i, s := range c.shown {
		if s == shown {
			return englishAlphabet[i], nil
		}
	}
	return 0, fmt.Errorf("recovery: character %q not in cipher layout", shown)
}
