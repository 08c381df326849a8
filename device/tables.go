// Bootloader/application dispatch table construction
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"github.com/usbarmory/walletfw/fsm"
	"github.com/usbarmory/walletfw/message"
)

// buildTables constructs the bootloader and application fsm.Tables from
// one shared registry of handlers, filtered by fsm.BootloaderTypes /
// fsm.ApplicationExcludedTypes (spec §4.2). Handler method values are
// bound to d here, before d's other fields (dispatcher, framer) exist;
// that is safe because a Go method value only captures the receiver
// pointer, not any field, and none of these handlers run until a frame
// arrives on the fully constructed Device.
func (d *Device) buildTables() (bootloader, application *fsm.Table) {
	all := map[message.Type]fsm.Handler{
		message.TypeInitialize:           d.handleInitialize,
		message.TypePing:                 d.handlePing,
		message.TypeCancel:               d.handleCancel,
		message.TypeButtonAck:            d.handleButtonAck,
		message.TypeClearSession:         d.handleClearSession,
		message.TypeWipeDevice:           d.handleWipeDevice,
		message.TypeChangePin:            d.handleChangePin,
		message.TypeApplySettings:        d.handleApplySettings,
		message.TypeGetEntropy:           d.handleGetEntropy,
		message.TypeLoadDevice:           d.handleLoadDevice,
		message.TypePinMatrixAck:         d.handlePinMatrixAck,
		message.TypePassphraseAck:        d.handlePassphraseAck,
		message.TypeCipherKeyValue:       d.handleCipherKeyValue,

		message.TypeGetAddress:           d.handleGetAddress,
		message.TypeGetPublicKey:         d.handleGetPublicKey,
		message.TypeSignMessage:          d.handleSignMessage,
		message.TypeVerifyMessage:        d.handleVerifyMessage,
		message.TypeEthereumGetAddress:   d.handleEthereumGetAddress,
		message.TypeEthereumSignMessage:  d.handleEthereumSignMessage,
		message.TypeEthereumVerifyMessage: d.handleEthereumVerifyMessage,

		message.TypeSignTx:          d.handleSignTx,
		message.TypeTxAck:           d.handleTxAck,
		message.TypeEstimateTxSize:  d.handleEstimateTxSize,
		message.TypeEthereumSignTx:  d.handleEthereumSignTx,
		message.TypeEthereumTxAck:   d.handleEthereumTxAck,
		message.TypeCosmosSignTx:    d.handleCosmosSignTx,
		message.TypeCosmosTxAck:     d.handleCosmosTxAck,

		message.TypeResetDevice:          d.handleResetDevice,
		message.TypeEntropyAck:           d.handleEntropyAck,
		message.TypeRecoveryDevice:       d.handleRecoveryDevice,
		message.TypeWordAck:              d.handleWordAck,
		message.TypeCharacterAck:         d.handleCharacterAck,
		message.TypeCharacterDeleteAck:   d.handleCharacterDeleteAck,
		message.TypeCharacterFinalAck:    d.handleCharacterFinalAck,

		message.TypeFirmwareErase: d.handleFirmwareErase,
	}

	excluded := make(map[message.Type]bool, len(fsm.ApplicationExcludedTypes))
	for _, t := range fsm.ApplicationExcludedTypes {
		excluded[t] = true
	}

	bootSet := make(map[message.Type]bool, len(fsm.BootloaderTypes))
	for _, t := range fsm.BootloaderTypes {
		bootSet[t] = true
	}

	bootloader = fsm.NewTable()
	application = fsm.NewTable()

	for t, h := range all {
		if bootSet[t] {
			bootloader.Handle(t, h)
		}
		if !excluded[t] {
			application.Handle(t, h)
		}
	}

	bootloader.HandleRaw(message.TypeFirmwareUpload, d.handleFirmwareUpload)

	return bootloader, application
}
