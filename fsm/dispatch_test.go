// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fsm

import (
	"testing"

	"github.com/usbarmory/walletfw/message"
)

type reply struct {
	typ     message.Type
	payload []byte
}

func newDispatcher(t *testing.T) (*Dispatcher, *[]reply) {
	t.Helper()

	var replies []reply
	emit := func(typ message.Type, payload []byte) {
		replies = append(replies, reply{typ, payload})
	}

	boot := NewTable().
		Handle(message.TypeInitialize, func([]byte) (message.Type, []byte) {
			return message.TypeFeatures, (&message.Features{BootloaderMode: true}).Encode()
		}).
		Handle(message.TypePing, func(b []byte) (message.Type, []byte) {
			return message.TypeSuccess, (&message.Success{}).Encode()
		}).
		HandleRaw(message.TypeFirmwareUpload, func(segment []byte, total uint32) {})

	app := NewTable().
		Handle(message.TypeInitialize, func([]byte) (message.Type, []byte) {
			return message.TypeFeatures, (&message.Features{}).Encode()
		}).
		Handle(message.TypePing, func(b []byte) (message.Type, []byte) {
			return message.TypeSuccess, (&message.Success{}).Encode()
		})

	d := NewDispatcher(Application, boot, app, emit)
	return d, &replies
}

func TestUnregisteredTypeReturnsUnexpectedMessage(t *testing.T) {
	d, replies := newDispatcher(t)

	d.Message(message.TypeFirmwareErase, nil)

	if len(*replies) != 1 || (*replies)[0].typ != message.TypeFailure {
		t.Fatalf("replies = %+v, want one Failure", *replies)
	}
}

func TestBootloaderTableRejectsWalletOps(t *testing.T) {
	d, replies := newDispatcher(t)
	d.SetMode(Bootloader)

	d.Message(message.TypeGetAddress, nil)

	if len(*replies) != 1 || (*replies)[0].typ != message.TypeFailure {
		t.Fatalf("replies = %+v, want one Failure", *replies)
	}
}

func TestApplicationTableRejectsFirmwareUpload(t *testing.T) {
	d, replies := newDispatcher(t)

	for _, typ := range ApplicationExcludedTypes {
		d.Message(typ, nil)
	}

	for _, r := range *replies {
		if r.typ != message.TypeFailure {
			t.Fatalf("reply %v, want Failure for excluded type", r.typ)
		}
	}
	if len(*replies) != len(ApplicationExcludedTypes) {
		t.Fatalf("got %d replies, want %d", len(*replies), len(ApplicationExcludedTypes))
	}
}

func TestInitializeSuppressesAbortFailure(t *testing.T) {
	d, replies := newDispatcher(t)

	d.OnInitialize(func() {
		// Simulate an in-progress signing session unwinding and trying
		// to report its own cancellation.
		d.EmitFailure(message.ActionCancelled, "aborted by initialize")
	})

	d.Message(message.TypeInitialize, nil)

	if len(*replies) != 1 {
		t.Fatalf("replies = %+v, want exactly one (Features, no stray Failure)", *replies)
	}
	if (*replies)[0].typ != message.TypeFeatures {
		t.Fatalf("reply type = %v, want Features", (*replies)[0].typ)
	}
}

func TestInitializeWithNoAbortInFlightStillRepliesFeatures(t *testing.T) {
	d, replies := newDispatcher(t)
	d.OnInitialize(func() {})

	d.Message(message.TypeInitialize, nil)

	if len(*replies) != 1 || (*replies)[0].typ != message.TypeFeatures {
		t.Fatalf("replies = %+v, want single Features", *replies)
	}

	// The suppression flag must not leak into the next, unrelated failure.
	d.Message(message.TypeFirmwareErase, nil)
	if len(*replies) != 2 || (*replies)[1].typ != message.TypeFailure {
		t.Fatalf("replies = %+v, want second entry to be a real Failure", *replies)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	d, _ := newDispatcher(t)

	calls := 0
	d.OnCancel(func() { calls++ })

	d.Message(message.TypeCancel, nil)
	d.Message(message.TypeCancel, nil)

	if calls != 2 {
		t.Fatalf("OnCancel called %d times, want 2 (idempotent, no panic/state corruption)", calls)
	}
}

func TestRawSegmentDispatchesToRawHandler(t *testing.T) {
	d, replies := newDispatcher(t)
	d.SetMode(Bootloader)

	var gotSegment []byte
	var gotTotal uint32

	boot := NewTable().HandleRaw(message.TypeFirmwareUpload, func(segment []byte, total uint32) {
		gotSegment = segment
		gotTotal = total
	})
	app := NewTable()
	emit := func(t message.Type, p []byte) {}
	d = NewDispatcher(Bootloader, boot, app, emit)
	_ = replies

	d.RawSegment(message.TypeFirmwareUpload, []byte{1, 2, 3}, 100)

	if gotTotal != 100 || len(gotSegment) != 3 {
		t.Fatalf("raw handler got segment=%v total=%d, want len 3 / total 100", gotSegment, gotTotal)
	}
}
