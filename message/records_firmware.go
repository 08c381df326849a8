// Bootloader firmware-upload records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

const (
	tagFwA uint8 = iota + 1
	tagFwB
)

// FirmwareErase confirms erasure of storage and application flash before
// an upload (spec §4.9 step 1).
type FirmwareErase struct{}

func (m *FirmwareErase) Encode() []byte { return nil }

// FirmwareUpload is declared Raw (message.IsRaw); its payload is streamed
// to firmware.Engine directly rather than decoded through this type. The
// struct exists only to document the schema's first-segment preamble
// fields consumed out-of-band by the raw handler.
type FirmwareUpload struct {
	Length uint32
}
