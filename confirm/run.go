// Blocking confirmation driver
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package confirm

import "time"

// Button reports the instantaneous physical button state. The real
// implementation (debounced GPIO read) is an external collaborator per
// spec §1; board.Button satisfies this interface structurally.
type Button interface {
	Pressed() bool
}

// Event is a host-originated interruption of an in-progress confirmation.
type Event int

const (
	EventButtonAck Event = iota
	EventCancel
	EventInitialize
)

// TickInterval is how often Run samples the button and advances
// animation; it stands in for the bare-metal main loop's per-iteration
// button debounce/animation tick.
const TickInterval = 20 * time.Millisecond

// Run drives m to completion, pumping button state on every TickInterval
// and watching events for a host Cancel/Initialize, per spec §4.3's "the
// device emits a ButtonRequest, then waits for (i) hold, (ii) ButtonAck,
// (iii) Cancel, or (iv) Initialize". sendButtonRequest is called exactly
// once, before the first tick.
//
// It returns confirmed=true iff the commit edge fired; resetRequested is
// true only when the abort reason was a fresh Initialize, signalling the
// caller to suppress its own failure reply (spec §4.2/§7's "reset flag").
func Run(m *Machine, button Button, events <-chan Event, sendButtonRequest func() error) (confirmed bool, resetRequested bool, err error) {
	if err := sendButtonRequest(); err != nil {
		return false, false, err
	}

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				m.Abort()
				return false, false, nil
			}
			switch ev {
			case EventCancel:
				m.Abort()
				return false, false, nil
			case EventInitialize:
				m.Abort()
				return false, true, nil
			case EventButtonAck:
				// Acknowledged; the host is now waiting on the physical
				// outcome. No state transition of our own.
			}

		case now := <-ticker.C:
			switch m.Step(button.Pressed(), now) {
			case OutcomeConfirmed:
				return true, false, nil
			case OutcomeAborted:
				return false, false, nil
			}
		}
	}
}
