// Core session/device lifecycle records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

// Field tags are local to each record type (a PinMatrixAck's tag 1 has
// nothing to do with a Features' tag 1); this mirrors descriptor.go where
// each descriptor struct defines its own field layout independently.
const (
	tagCoreA uint8 = iota + 1
	tagCoreB
	tagCoreC
	tagCoreD
	tagCoreE
	tagCoreF
	tagCoreG
	tagCoreH
	tagCoreI
	tagCoreJ
	tagCoreK
	tagCoreL
	tagCoreM
)

// Initialize resets the session, as described in spec §4.2.
type Initialize struct {
	SessionID []byte
}

func (m *Initialize) Encode() []byte {
	e := NewEncoder()
	e.BytesField(tagCoreA, m.SessionID)
	return e.Bytes()
}

func DecodeInitialize(b []byte) (*Initialize, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &Initialize{SessionID: d.BytesField(tagCoreA)}, nil
}

// Features answers Initialize/GetFeatures with the device identity and
// capability summary of spec §8 scenario S1.
type Features struct {
	Vendor                string
	MajorVersion          uint32
	MinorVersion          uint32
	PatchVersion          uint32
	BootloaderMode        bool
	Initialized           bool
	PinProtection         bool
	PassphraseProtection  bool
	Label                 string
	Language               string
	Imported              bool
	PinCached             bool
	PassphraseCached      bool
}

func (m *Features) Encode() []byte {
	e := NewEncoder()
	e.String(tagCoreA, m.Vendor)
	e.Uint32(tagCoreB, m.MajorVersion)
	e.Uint32(tagCoreC, m.MinorVersion)
	e.Uint32(tagCoreD, m.PatchVersion)
	e.Bool(tagCoreE, m.BootloaderMode)
	e.Bool(tagCoreF, m.Initialized)
	e.Bool(tagCoreG, m.PinProtection)
	e.Bool(tagCoreH, m.PassphraseProtection)
	e.String(tagCoreI, m.Label)
	e.String(tagCoreJ, m.Language)
	e.Bool(tagCoreK, m.Imported)
	e.Bool(tagCoreL, m.PinCached)
	e.Bool(tagCoreM, m.PassphraseCached)
	return e.Bytes()
}

// Ping requests a liveness Success reply, optionally round-tripping a
// message string.
type Ping struct {
	Message string
}

func (m *Ping) Encode() []byte {
	e := NewEncoder()
	e.String(tagCoreA, m.Message)
	return e.Bytes()
}

func DecodePing(b []byte) (*Ping, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &Ping{Message: d.String(tagCoreA, "")}, nil
}

// Success is the generic positive acknowledgement.
type Success struct {
	Message string
}

func (m *Success) Encode() []byte {
	e := NewEncoder()
	e.String(tagCoreA, m.Message)
	return e.Bytes()
}

// Failure carries one of the taxonomy codes of spec §6/§7.
type Failure struct {
	Code    FailureCode
	Message string
}

func (m *Failure) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagCoreA, uint32(m.Code))
	e.String(tagCoreB, m.Message)
	return e.Bytes()
}

// ButtonRequest asks the host to wait while the device blocks on physical
// confirmation (spec §4.3).
type ButtonRequest struct {
	Type ButtonRequestType
}

func (m *ButtonRequest) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagCoreA, uint32(m.Type))
	return e.Bytes()
}

// ButtonAck is the host's notification that it is waiting for the physical
// confirmation outcome; it carries no fields.
type ButtonAck struct{}

func (m *ButtonAck) Encode() []byte { return nil }

// Cancel aborts recovery or signing in progress; idempotent per spec §4.2.
type Cancel struct{}

func (m *Cancel) Encode() []byte { return nil }

// ClearSession drops the cached HD root and passphrase (spec §4.5).
type ClearSession struct{}

func (m *ClearSession) Encode() []byte { return nil }

// PinMatrixRequest asks the host to relay the randomized-matrix positions
// the user selected (spec §4.6); the device never reveals digit values.
type PinMatrixRequest struct {
	Purpose uint32
}

func (m *PinMatrixRequest) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagCoreA, m.Purpose)
	return e.Bytes()
}

// PinMatrixAck carries the positions (not digits) the user pressed.
type PinMatrixAck struct {
	Positions string
}

func DecodePinMatrixAck(b []byte) (*PinMatrixAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &PinMatrixAck{Positions: d.String(tagCoreA, "")}, nil
}

// PassphraseRequest asks the host for the BIP-39 passphrase.
type PassphraseRequest struct{}

func (m *PassphraseRequest) Encode() []byte { return nil }

// PassphraseAck carries the passphrase to be cached for this session.
type PassphraseAck struct {
	Passphrase string
}

func DecodePassphraseAck(b []byte) (*PassphraseAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &PassphraseAck{Passphrase: d.String(tagCoreA, "")}, nil
}

// WipeDevice erases all storage candidate slots (spec §4.4).
type WipeDevice struct{}

func (m *WipeDevice) Encode() []byte { return nil }

// ChangePin sets or clears the device PIN.
type ChangePin struct {
	Remove bool
}

func DecodeChangePin(b []byte) (*ChangePin, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &ChangePin{Remove: d.Bool(tagCoreA, false)}, nil
}

// ApplySettings updates label/language/policy flags.
type ApplySettings struct {
	Label                 string
	Language               string
	UsePassphrase          bool
	HasUsePassphrase       bool
}

func DecodeApplySettings(b []byte) (*ApplySettings, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &ApplySettings{
		Label:            d.String(tagCoreA, ""),
		Language:         d.String(tagCoreB, ""),
		UsePassphrase:    d.Bool(tagCoreC, false),
		HasUsePassphrase: d.Has(tagCoreC),
	}, nil
}

// GetEntropy requests raw CSPRNG bytes, bypassing the HD path entirely.
type GetEntropy struct {
	Size uint32
}

func DecodeGetEntropy(b []byte) (*GetEntropy, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &GetEntropy{Size: d.Uint32(tagCoreA, 0)}, nil
}

// Entropy answers GetEntropy.
type Entropy struct {
	Data []byte
}

func (m *Entropy) Encode() []byte {
	e := NewEncoder()
	e.BytesField(tagCoreA, m.Data)
	return e.Bytes()
}

// LoadDevice injects a mnemonic or raw node directly (testing/import use,
// spec §8 scenario S2).
type LoadDevice struct {
	Mnemonic             string
	Pin                  string
	PassphraseProtection bool
	Label                string
	Language             string
}

func DecodeLoadDevice(b []byte) (*LoadDevice, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &LoadDevice{
		Mnemonic:             d.String(tagCoreA, ""),
		Pin:                  d.String(tagCoreB, ""),
		PassphraseProtection: d.Bool(tagCoreC, false),
		Label:                d.String(tagCoreD, ""),
		Language:             d.String(tagCoreE, "english"),
	}, nil
}

// CipherKeyValue performs deterministic AES-256-CBC encrypt/decrypt keyed
// off a BIP-32 path-derived key (supplemented feature, see SPEC_FULL.md).
type CipherKeyValue struct {
	AddressN []uint32
	Key      string
	Value    []byte
	Encrypt  bool
	IV       []byte
}

func DecodeCipherKeyValue(b []byte) (*CipherKeyValue, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &CipherKeyValue{
		AddressN: decodePath(d.BytesField(tagCoreA)),
		Key:      d.String(tagCoreB, ""),
		Value:    d.BytesField(tagCoreC),
		Encrypt:  d.Bool(tagCoreD, false),
		IV:       d.BytesField(tagCoreE),
	}, nil
}

// CipheredKeyValue answers CipherKeyValue.
type CipheredKeyValue struct {
	Value []byte
}

func (m *CipheredKeyValue) Encode() []byte {
	e := NewEncoder()
	e.BytesField(tagCoreA, m.Value)
	return e.Bytes()
}
