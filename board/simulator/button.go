// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package simulator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Button is a board.Button/confirm.Button driven by test code or a CLI
// operator command instead of a debounced GPIO read.
type Button struct {
	pressed atomic.Bool
}

func (b *Button) Pressed() bool {
	return b.pressed.Load()
}

// Set changes the simulated physical state.
func (b *Button) Set(pressed bool) {
	b.pressed.Store(pressed)
}

// Hold presses the button, waits d, then releases it; a convenience for
// tests that exercise confirm.Machine's hold-to-confirm behavior.
func (b *Button) Hold(d time.Duration) {
	b.Set(true)
	time.Sleep(d)
	b.Set(false)
}

// Timer is a board.Timer backed by the system clock.
type Timer struct{}

func (Timer) Now() time.Time { return time.Now() }

// Clock is a board.Timer with a manually advanced time, for deterministic
// tests that do not want to depend on wall-clock sleeps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
