// Address/public-key derivation records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

import "encoding/binary"

const (
	tagAddrPath uint8 = iota + 1
	tagAddrCoin
	tagAddrShow
	tagAddrMultisig
	tagAddrResult
	tagAddrXPub
)

// encodePath packs a BIP-32 address_n list as big-endian uint32s.
func encodePath(path []uint32) []byte {
	b := make([]byte, 4*len(path))
	for i, v := range path {
		binary.BigEndian.PutUint32(b[i*4:], v)
	}
	return b
}

// decodePath is the inverse of encodePath; malformed (non-multiple-of-4)
// input yields a truncated path rather than an error, since any such path
// will subsequently fail the coin-specific depth checks of spec §4.7.
func decodePath(b []byte) []uint32 {
	n := len(b) / 4
	path := make([]uint32, n)
	for i := 0; i < n; i++ {
		path[i] = binary.BigEndian.Uint32(b[i*4:])
	}
	return path
}

// GetAddress requests a coin address derived at AddressN, optionally
// showing it on-device for confirmation (spec §8 scenario S2).
type GetAddress struct {
	AddressN    []uint32
	CoinName    string
	ShowDisplay bool
}

func DecodeGetAddress(b []byte) (*GetAddress, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &GetAddress{
		AddressN:    decodePath(d.BytesField(tagAddrPath)),
		CoinName:    d.String(tagAddrCoin, "Bitcoin"),
		ShowDisplay: d.Bool(tagAddrShow, false),
	}, nil
}

// Address answers GetAddress.
type Address struct {
	Address string
}

func (m *Address) Encode() []byte {
	e := NewEncoder()
	e.String(tagAddrResult, m.Address)
	return e.Bytes()
}

// GetPublicKey requests the extended public key at AddressN.
type GetPublicKey struct {
	AddressN    []uint32
	CoinName    string
	ShowDisplay bool
}

func DecodeGetPublicKey(b []byte) (*GetPublicKey, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &GetPublicKey{
		AddressN:    decodePath(d.BytesField(tagAddrPath)),
		CoinName:    d.String(tagAddrCoin, "Bitcoin"),
		ShowDisplay: d.Bool(tagAddrShow, false),
	}, nil
}

// PublicKey answers GetPublicKey with the serialized extended key string.
type PublicKey struct {
	XPub string
}

func (m *PublicKey) Encode() []byte {
	e := NewEncoder()
	e.String(tagAddrXPub, m.XPub)
	return e.Bytes()
}

// SignMessage signs an arbitrary message with the key at AddressN using
// the Bitcoin message-signing convention.
type SignMessage struct {
	AddressN []uint32
	Message  []byte
	CoinName string
}

func DecodeSignMessage(b []byte) (*SignMessage, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &SignMessage{
		AddressN: decodePath(d.BytesField(tagAddrPath)),
		Message:  d.BytesField(tagAddrShow),
		CoinName: d.String(tagAddrCoin, "Bitcoin"),
	}, nil
}

// MessageSignature answers SignMessage/EthereumSignMessage.
type MessageSignature struct {
	Address   string
	Signature []byte
}

func (m *MessageSignature) Encode() []byte {
	e := NewEncoder()
	e.String(tagAddrCoin, m.Address)
	e.BytesField(tagAddrResult, m.Signature)
	return e.Bytes()
}

// VerifyMessage checks a message signature against a claimed address.
type VerifyMessage struct {
	Address   string
	Signature []byte
	Message   []byte
	CoinName  string
}

func DecodeVerifyMessage(b []byte) (*VerifyMessage, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &VerifyMessage{
		Address:   d.String(tagAddrCoin, ""),
		Signature: d.BytesField(tagAddrResult),
		Message:   d.BytesField(tagAddrShow),
		CoinName:  d.String(tagAddrXPub, "Bitcoin"),
	}, nil
}

// EncryptMessage/DecryptMessage are ECIES-style operations against a
// recipient public key. EncryptMessage shares SignMessage's tags for
// Message and CoinName but carries AddressN under a different tag;
// DecryptMessage shares SignMessage's tags for AddressN and Message.
type EncryptMessage struct {
	PubKey      []byte
	Message     []byte
	DisplayOnly bool
	AddressN    []uint32
	CoinName    string
}

func DecodeEncryptMessage(b []byte) (*EncryptMessage, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EncryptMessage{
		PubKey:      d.BytesField(tagAddrMultisig),
		Message:     d.BytesField(tagAddrShow),
		DisplayOnly: d.Bool(tagAddrPath, false),
		AddressN:    decodePath(d.BytesField(tagAddrResult)),
		CoinName:    d.String(tagAddrCoin, "Bitcoin"),
	}, nil
}

type DecryptMessage struct {
	AddressN []uint32
	Nonce    []byte
	Message  []byte
	HMAC     []byte
}

func DecodeDecryptMessage(b []byte) (*DecryptMessage, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &DecryptMessage{
		AddressN: decodePath(d.BytesField(tagAddrPath)),
		Nonce:    d.BytesField(tagAddrMultisig),
		Message:  d.BytesField(tagAddrShow),
		HMAC:     d.BytesField(tagAddrResult),
	}, nil
}
