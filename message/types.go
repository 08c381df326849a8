// Wallet wire message type registry
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package message implements the typed request/response schema exchanged
// between an untrusted host and the wallet core over the transport frames
// of package transport.
//
// Each wire message is a tagged, length-prefixed record (see wire.go); this
// file only enumerates the type codes and their direction/class, mirroring
// the dispatch table shape of imx6/usb/setup.go's request code constants.
package message

// Type is the 16-bit big-endian wire type code carried in the first frame
// header (read by transport.Framer right after the "##" preamble).
type Type uint16

// Class distinguishes how a message's payload is delivered to the
// dispatcher.
type Class int

const (
	// Normal messages are schema-decoded in full before the handler runs.
	Normal Class = iota
	// Raw messages bypass decoding; their payload is streamed to a
	// handler as frames arrive. Only FirmwareUpload uses this today.
	Raw
	// Debug is the class of DebugLink messages; this module defines no
	// DebugLink types and no debug build, so no dispatch table holds one.
	Debug
)

// Direction records whether a type is sent by the host ("in", device
// receives it) or by the device ("out", host receives it).
type Direction int

const (
	In Direction = iota
	Out
)

// Wallet operation message types. Numbering is arbitrary (no wire
// compatibility with any existing device is implied) but stable within
// this module.
const (
	TypeInitialize Type = iota + 1
	TypeFeatures
	TypePing
	TypeSuccess
	TypeFailure

	TypeButtonRequest
	TypeButtonAck

	TypePinMatrixRequest
	TypePinMatrixAck

	TypePassphraseRequest
	TypePassphraseAck

	TypeClearSession
	TypeApplySettings
	TypeChangePin
	TypeWipeDevice

	TypeGetEntropy
	TypeEntropy

	TypeGetPublicKey
	TypePublicKey

	TypeGetAddress
	TypeAddress

	TypeSignMessage
	TypeVerifyMessage
	TypeMessageSignature

	TypeEncryptMessage
	TypeDecryptMessage

	TypeSignTx
	TypeTxRequest
	TypeTxAck
	TypeEstimateTxSize
	TypeTxSize

	TypeCipherKeyValue
	TypeCipheredKeyValue

	TypeLoadDevice
	TypeResetDevice

	TypeEntropyRequest
	TypeEntropyAck

	TypeRecoveryDevice
	TypeWordRequest
	TypeWordAck
	TypeCharacterRequest
	TypeCharacterAck
	TypeCharacterDeleteAck
	TypeCharacterFinalAck

	TypeFirmwareErase
	TypeFirmwareUpload

	TypeEthereumSignTx
	TypeEthereumTxAck
	TypeEthereumGetAddress
	TypeEthereumAddress
	TypeEthereumSignMessage
	TypeEthereumVerifyMessage
	TypeEthereumMessageSignature

	TypeCosmosSignTx
	TypeCosmosTxAck
	TypeCosmosTxRequest

	TypeCancel

	typeMax
)

// rawTypes lists the Raw-class types; every type absent from it is Normal.
// Only FirmwareUpload is raw.
var rawTypes = map[Type]bool{
	TypeFirmwareUpload: true,
}

// IsRaw reports whether t must be dispatched through the raw handler table
// (transport streams its payload without decoding).
func IsRaw(t Type) bool {
	return rawTypes[t]
}

// names gives a short diagnostic label for logging; unknown types format as
// their numeric value by the caller.
var names = map[Type]string{
	TypeInitialize:                 "Initialize",
	TypeFeatures:                   "Features",
	TypePing:                       "Ping",
	TypeSuccess:                    "Success",
	TypeFailure:                    "Failure",
	TypeButtonRequest:              "ButtonRequest",
	TypeButtonAck:                  "ButtonAck",
	TypePinMatrixRequest:           "PinMatrixRequest",
	TypePinMatrixAck:               "PinMatrixAck",
	TypePassphraseRequest:          "PassphraseRequest",
	TypePassphraseAck:              "PassphraseAck",
	TypeClearSession:               "ClearSession",
	TypeApplySettings:              "ApplySettings",
	TypeChangePin:                  "ChangePin",
	TypeWipeDevice:                 "WipeDevice",
	TypeGetEntropy:                 "GetEntropy",
	TypeEntropy:                    "Entropy",
	TypeGetPublicKey:               "GetPublicKey",
	TypePublicKey:                  "PublicKey",
	TypeGetAddress:                 "GetAddress",
	TypeAddress:                    "Address",
	TypeSignMessage:                "SignMessage",
	TypeVerifyMessage:              "VerifyMessage",
	TypeMessageSignature:           "MessageSignature",
	TypeEncryptMessage:             "EncryptMessage",
	TypeDecryptMessage:             "DecryptMessage",
	TypeSignTx:                     "SignTx",
	TypeTxRequest:                  "TxRequest",
	TypeTxAck:                      "TxAck",
	TypeEstimateTxSize:             "EstimateTxSize",
	TypeTxSize:                     "TxSize",
	TypeCipherKeyValue:             "CipherKeyValue",
	TypeCipheredKeyValue:           "CipheredKeyValue",
	TypeLoadDevice:                 "LoadDevice",
	TypeResetDevice:                "ResetDevice",
	TypeEntropyRequest:             "EntropyRequest",
	TypeEntropyAck:                 "EntropyAck",
	TypeRecoveryDevice:             "RecoveryDevice",
	TypeWordRequest:                "WordRequest",
	TypeWordAck:                    "WordAck",
	TypeCharacterRequest:           "CharacterRequest",
	TypeCharacterAck:               "CharacterAck",
	TypeCharacterDeleteAck:         "CharacterDeleteAck",
	TypeCharacterFinalAck:          "CharacterFinalAck",
	TypeFirmwareErase:              "FirmwareErase",
	TypeFirmwareUpload:             "FirmwareUpload",
	TypeEthereumSignTx:             "EthereumSignTx",
	TypeEthereumTxAck:              "EthereumTxAck",
	TypeEthereumGetAddress:         "EthereumGetAddress",
	TypeEthereumAddress:            "EthereumAddress",
	TypeEthereumSignMessage:        "EthereumSignMessage",
	TypeEthereumVerifyMessage:      "EthereumVerifyMessage",
	TypeEthereumMessageSignature:   "EthereumMessageSignature",
	TypeCosmosSignTx:               "CosmosSignTx",
	TypeCosmosTxAck:                "CosmosTxAck",
	TypeCosmosTxRequest:            "CosmosTxRequest",
	TypeCancel:                     "Cancel",
}

// String implements fmt.Stringer for diagnostic logging.
func (t Type) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return "Unknown"
}

// FailureCode enumerates the taxonomy of spec §6/§7.
type FailureCode int

const (
	UnexpectedMessage FailureCode = iota
	ButtonExpected
	SyntaxError
	ActionCancelled
	PinExpected
	PinCancelled
	PinInvalid
	InvalidSignature
	Other
	NotEnoughFunds
	NotInitialized
	FirmwareError
)

// ButtonRequestType enumerates the semantic intent shown to the user by
// the confirmation UI protocol (§4.3).
type ButtonRequestType int

const (
	ButtonRequestOther ButtonRequestType = iota
	ButtonRequestConfirmOutput
	ButtonRequestResetDevice
	ButtonRequestConfirmWord
	ButtonRequestWipeDevice
	ButtonRequestProtectCall
	ButtonRequestSignTx
	ButtonRequestFirmwareCheck
	ButtonRequestAddress
	ButtonRequestPublicKey
	ButtonRequestMnemonicWordCount
	ButtonRequestMnemonicInput
	ButtonRequestPassphraseType
	ButtonRequestChangePin
	ButtonRequestApplySettings
)
