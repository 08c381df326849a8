// Bootloader/application mode and dispatch table membership
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package fsm implements the spec §4.2 top-level dispatcher: two fixed
// dispatch tables selected by startup mode, plus the Initialize/Cancel
// reset semantics that apply regardless of which table is active.
//
// It is grounded on imx6/usb/setup.go's switch-on-bRequest dispatch,
// generalized from a single switch statement to a registered
// map[message.Type]Handler table per mode, per the Design Notes' "sum
// type Msg ... or a static lookup table" guidance.
package fsm

import "github.com/usbarmory/walletfw/message"

// Mode selects which of the two spec §4.2 dispatch tables is active.
type Mode int

const (
	Bootloader Mode = iota
	Application
)

func (m Mode) String() string {
	if m == Bootloader {
		return "bootloader"
	}
	return "application"
}

// BootloaderTypes are the only message types the bootloader table may
// serve (spec §4.2). DebugLink types are omitted: this module defines none
// and has no debug build tag.
var BootloaderTypes = []message.Type{
	message.TypeInitialize,
	message.TypePing,
	message.TypeFirmwareErase,
	message.TypeFirmwareUpload,
	message.TypeButtonAck,
	message.TypeCancel,
}

// ApplicationExcludedTypes must never answer in the application table:
// "FirmwareErase/FirmwareUpload return UnexpectedMessage" once the device
// has booted into application mode (spec §4.2).
var ApplicationExcludedTypes = []message.Type{
	message.TypeFirmwareErase,
	message.TypeFirmwareUpload,
}
