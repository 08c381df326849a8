// Randomized PIN matrix
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pin implements the PIN entry protocol of spec §4.6: a
// randomized 3x3 matrix shown on-device so the host only ever learns
// which positions the user pressed, never which digits they represent.
package pin

import (
	"crypto/rand"
	"fmt"
)

// MatrixSize is the 3x3 layout; positions are numbered 1-9 reading the
// device's displayed grid left-to-right, top-to-bottom, matching the
// convention the host-side PinMatrixAck.Positions string uses.
const MatrixSize = 9

// Matrix is one randomized digit layout. A fresh Matrix must be generated
// for every PinMatrixRequest so a host that logs prior positions gains no
// information about the digits.
type Matrix struct {
	layout [MatrixSize]byte // layout[pos-1] = digit '1'..'9'
}

// NewMatrix returns a Matrix with digits 1-9 placed via a
// Fisher-Yates shuffle seeded from crypto/rand.
func NewMatrix() (*Matrix, error) {
	digits := [MatrixSize]byte{'1', '2', '3', '4', '5', '6', '7', '8', '9'}

	for i := MatrixSize - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return nil, fmt.Errorf("pin: shuffle matrix: %w", err)
		}
		digits[i], digits[j] = digits[j], digits[i]
	}

	return &Matrix{layout: digits}, nil
}

func randIndex(n int) (int, error) {
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		// rejection sampling to avoid modulo bias
		if int(b[0]) < 256-(256%n) {
			return int(b[0]) % n, nil
		}
	}
}

// Translate maps a host-reported position string (each byte '1'-'9') back
// to the real digit string using this matrix's layout. The device never
// sends the layout itself over the wire; only the resulting digit string
// is used locally to compare against the stored PIN.
func (m *Matrix) Translate(positions string) (string, error) {
	digits := make([]byte, 0, len(positions))

	for _, p := range []byte(positions) {
		if p < '1' || p > '9' {
			return "", fmt.Errorf("pin: invalid matrix position %q", p)
		}
		digits = append(digits, m.layout[p-'1'])
	}

	return string(digits), nil
}
