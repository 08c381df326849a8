// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package simulator

import (
	"fmt"
	"io"
	"sync"
)

// Display is a board.Display that appends every shown line to an
// in-memory log (and, if w is non-nil, echoes it), so tests can assert on
// what the device would have shown without a real framebuffer.
type Display struct {
	mu    sync.Mutex
	w     io.Writer
	lines []string
	frame int
}

// NewDisplay returns a Display optionally echoing to w (pass nil to log
// silently, as most tests do).
func NewDisplay(w io.Writer) *Display {
	return &Display{w: w}
}

func (d *Display) ShowText(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, s)
	if d.w != nil {
		fmt.Fprintln(d.w, s)
	}
}

func (d *Display) ShowAnimationFrame(frame int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = frame
}

// Lines returns every string passed to ShowText, in order.
func (d *Display) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// Last returns the most recent ShowText string, or "" if none yet.
func (d *Display) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.lines) == 0 {
		return ""
	}
	return d.lines[len(d.lines)-1]
}
