// Button-hold confirmation protocol
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package confirm implements the blocking user-consent primitive of spec
// §4.3: every state-mutating operation funnels through a button-hold (or,
// for the review variant, a single click) before the device commits.
//
// It is grounded on the Design Notes' "Cooperative step function
// returning Pending | Confirmed | Aborted" guidance and on
// imx6/usb/setup.go's getSetup busy-poll loop, generalized from polling a
// hardware register to polling a Button interface once per tick.
package confirm

import "time"

// HoldDuration is the default press-and-hold time required to reach the
// CONFIRMED state (spec §4.3: "CONFIRM hold ≈ 1.2-2.0 s").
const HoldDuration = 1500 * time.Millisecond

// State is one node of the spec §4.3 state machine:
//
//	HOME -> PRESSED -> HOLD_ANIMATING -> CONFIRMED -> RELEASED(OK)
//	          \-> (early release) -> ABORTED
type State int

const (
	Home State = iota
	Pressed
	HoldAnimating
	Confirmed
	ReleasedOK
	Aborted
)

func (s State) String() string {
	switch s {
	case Home:
		return "HOME"
	case Pressed:
		return "PRESSED"
	case HoldAnimating:
		return "HOLD_ANIMATING"
	case Confirmed:
		return "CONFIRMED"
	case ReleasedOK:
		return "RELEASED_OK"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what Machine.Step reports for the tick just processed.
type Outcome int

const (
	Pending Outcome = iota
	OutcomeConfirmed
	OutcomeAborted
)

// Machine is the pure state machine core, free of any I/O, so it can be
// driven by tests (confirm_test.go) or by Run below.
type Machine struct {
	state       State
	pressedAt   time.Time
	holdFor     time.Duration
	reviewOnly  bool // single click suffices (the "review variant")
}

// NewMachine returns a Machine requiring a press-and-hold of holdFor.
func NewMachine(holdFor time.Duration) *Machine {
	return &Machine{holdFor: holdFor}
}

// NewReviewMachine returns a Machine where a single click (press then
// release, no hold) suffices — spec §4.3's "review variant".
func NewReviewMachine() *Machine {
	return &Machine{reviewOnly: true}
}

// State returns the current state, mainly for diagnostics/tests.
func (m *Machine) State() State {
	return m.state
}

// Abort forces ABORTED regardless of current state — used when Cancel or
// Initialize arrives mid-confirmation (spec §4.3 result iii/iv).
func (m *Machine) Abort() {
	m.state = Aborted
}

// Step advances the machine by one tick given the instantaneous button
// state and the current time.
func (m *Machine) Step(pressed bool, now time.Time) Outcome {
	switch m.state {
	case Home:
		if pressed {
			m.state = Pressed
			m.pressedAt = now
		}
		return Pending

	case Pressed, HoldAnimating:
		if !pressed {
			if m.reviewOnly {
				m.state = ReleasedOK
				return OutcomeConfirmed
			}
			m.state = Aborted
			return OutcomeAborted
		}
		if m.reviewOnly || now.Sub(m.pressedAt) >= m.holdFor {
			m.state = Confirmed
			return Pending
		}
		m.state = HoldAnimating
		return Pending

	case Confirmed:
		if !pressed {
			m.state = ReleasedOK
			return OutcomeConfirmed
		}
		return Pending

	case ReleasedOK:
		return OutcomeConfirmed

	case Aborted:
		return OutcomeAborted
	}

	return Pending
}
