// External hardware collaborator interfaces
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package board declares the narrow hardware interfaces the wallet core
// treats as external collaborators, out of scope per spec §1: flash,
// display, the confirmation button, the millisecond timer, and the USB
// endpoint. It is grounded on board/usbarmory/mk2's role in the teacher
// tree — a board package exposing concrete hardware behind small
// interfaces that SoC-independent code consumes without caring which
// silicon it is running on. board/simulator supplies a non-hardware
// implementation for tests and the hosted CLI, the same role
// board/qemu/board/cloud_hypervisor play for the teacher's emulated
// targets.
package board

import "time"

// Flash is the application/storage flash region, bracketed by
// Unlock/Lock per spec §4.9/§5 ("flash writes are bracketed by unlock /
// lock"). Offsets are relative to the start of the region the Flash value
// represents, not an absolute chip address.
type Flash interface {
	Unlock() error
	Lock() error
	ReadAt(p []byte, offset int64) (n int, err error)
	WriteAt(p []byte, offset int64) (n int, err error)
	Size() int64
}

// Display renders the short notifications, confirmation prompts, and
// fingerprint hex strings of spec §4.3/§4.9.
type Display interface {
	ShowText(s string)
	ShowAnimationFrame(frame int)
}

// Button reports the instantaneous physical confirmation button state;
// satisfies confirm.Button structurally.
type Button interface {
	Pressed() bool
}

// Timer is the millisecond counter backing the main loop's cooperative
// scheduling (spec §5: "a timer tick ... advances a millisecond
// counter").
type Timer interface {
	Now() time.Time
}

// Endpoint is the USB HID endpoint: fixed-size report reads/writes, one
// frame at a time (spec §6's 64-byte HID frames).
type Endpoint interface {
	Read(report []byte) (n int, err error)
	Write(report []byte) (n int, err error)
}
