// FirmwareErase/FirmwareUpload handlers
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import "github.com/usbarmory/walletfw/message"

// handleFirmwareErase confirms the erase, wipes storage and the
// application flash region, and starts the single dedicated worker
// goroutine that will drain d.fwSegments for the rest of the upload
// (spec §4.9 step 1; §9's "at most one active session per category").
func (d *Device) handleFirmwareErase(payload []byte) (message.Type, []byte) {
	return d.async(func() (message.Type, []byte) {
		confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestWipeDevice, "erase and install new firmware?")
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		if abandoned {
			return 0, nil
		}
		if !confirmed {
			return message.TypeFailure, (&message.Failure{Code: message.ActionCancelled, Message: "erase not confirmed"}).Encode()
		}

		if err := d.fwEngine.Erase(); err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.FirmwareError, Message: err.Error()}).Encode()
		}

		d.mu.Lock()
		d.fwStarted = true
		d.mu.Unlock()

		d.fwOnce.Do(func() {
			go d.runFirmwareUpload()
		})

		return message.TypeSuccess, (&message.Success{Message: "Erased"}).Encode()
	})
}

// runFirmwareUpload is the single worker goroutine that serially feeds
// every FirmwareUpload segment to the engine (Engine.Segment blocks on
// the button-hold confirmation inside finish(), so this can never run on
// the frame pump).
func (d *Device) runFirmwareUpload() {
	for seg := range d.fwSegments {
		typ, payload, done := d.fwEngine.Segment(seg.data, seg.total)
		if !done {
			continue
		}
		d.dispatcher.Emit(typ, payload)

		d.mu.Lock()
		d.fwStarted = false
		d.mu.Unlock()
		return
	}
}

// handleFirmwareUpload is the raw-segment sink for TypeFirmwareUpload
// (spec §4.9 step 3); it carries no synchronous reply, matching
// transport.Sink's RawSegment contract.
func (d *Device) handleFirmwareUpload(segment []byte, total uint32) {
	d.mu.Lock()
	started := d.fwStarted
	d.mu.Unlock()

	if !started {
		d.dispatcher.Emit(message.TypeFailure, (&message.Failure{Code: message.FirmwareError, Message: "upload not armed, send FirmwareErase first"}).Encode())
		return
	}

	d.fwSegments <- fwSegment{data: segment, total: total}
}
