// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package confirm

import (
	"testing"
	"time"
)

func TestMachineHoldToConfirm(t *testing.T) {
	m := NewMachine(1 * time.Second)
	now := time.Now()

	if out := m.Step(false, now); out != Pending {
		t.Fatalf("idle step = %v, want Pending", out)
	}

	now = now.Add(10 * time.Millisecond)
	if out := m.Step(true, now); out != Pending || m.State() != Pressed {
		t.Fatalf("press step = %v/%v, want Pending/Pressed", out, m.State())
	}

	now = now.Add(500 * time.Millisecond)
	if out := m.Step(true, now); out != Pending || m.State() != HoldAnimating {
		t.Fatalf("mid-hold step = %v/%v, want Pending/HoldAnimating", out, m.State())
	}

	now = now.Add(600 * time.Millisecond) // total held > 1s
	if out := m.Step(true, now); out != Pending || m.State() != Confirmed {
		t.Fatalf("hold-complete step = %v/%v, want Pending/Confirmed", out, m.State())
	}

	if out := m.Step(false, now); out != OutcomeConfirmed || m.State() != ReleasedOK {
		t.Fatalf("release-after-confirmed step = %v/%v, want OutcomeConfirmed/ReleasedOK", out, m.State())
	}
}

func TestMachineEarlyReleaseAborts(t *testing.T) {
	m := NewMachine(1 * time.Second)
	now := time.Now()

	m.Step(true, now)
	now = now.Add(100 * time.Millisecond)

	if out := m.Step(false, now); out != OutcomeAborted || m.State() != Aborted {
		t.Fatalf("early release = %v/%v, want OutcomeAborted/Aborted", out, m.State())
	}
}

func TestMachineAbortFromAnyState(t *testing.T) {
	m := NewMachine(1 * time.Second)
	m.Step(true, time.Now())
	m.Abort()

	if m.State() != Aborted {
		t.Fatalf("state after Abort() = %v, want Aborted", m.State())
	}
	if out := m.Step(true, time.Now()); out != OutcomeAborted {
		t.Fatalf("post-abort step = %v, want OutcomeAborted", out)
	}
}

func TestReviewMachineSingleClick(t *testing.T) {
	m := NewReviewMachine()
	now := time.Now()

	m.Step(true, now)
	if out := m.Step(false, now); out != OutcomeConfirmed {
		t.Fatalf("review click = %v, want OutcomeConfirmed", out)
	}
}

type fakeButton struct{ pressed bool }

func (f *fakeButton) Pressed() bool { return f.pressed }

func TestRunConfirmedByHold(t *testing.T) {
	m := NewMachine(30 * time.Millisecond)
	btn := &fakeButton{}
	events := make(chan Event)

	go func() {
		time.Sleep(5 * time.Millisecond)
		btn.pressed = true
		time.Sleep(60 * time.Millisecond)
		btn.pressed = false
	}()

	sent := false
	confirmed, reset, err := Run(m, btn, events, func() error {
		sent = true
		return nil
	})

	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !sent {
		t.Fatal("sendButtonRequest was never called")
	}
	if !confirmed || reset {
		t.Fatalf("confirmed=%v reset=%v, want true/false", confirmed, reset)
	}
}

func TestRunAbortedByInitialize(t *testing.T) {
	m := NewMachine(time.Hour) // never completes on its own
	btn := &fakeButton{}
	events := make(chan Event, 1)
	events <- EventInitialize

	confirmed, reset, err := Run(m, btn, events, func() error { return nil })
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if confirmed || !reset {
		t.Fatalf("confirmed=%v reset=%v, want false/true", confirmed, reset)
	}
}

func TestRunAbortedByCancel(t *testing.T) {
	m := NewMachine(time.Hour)
	btn := &fakeButton{}
	events := make(chan Event, 1)
	events <- EventCancel

	confirmed, reset, err := Run(m, btn, events, func() error { return nil })
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if confirmed || reset {
		t.Fatalf("confirmed=%v reset=%v, want false/false", confirmed, reset)
	}
}
