// Ethereum-style signing records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

const (
	tagEthA uint8 = iota + 1
	tagEthB
	tagEthC
	tagEthD
	tagEthE
	tagEthF
	tagEthG
	tagEthH
	tagEthI
)

// EthereumGetAddress requests the Ethereum address at AddressN.
type EthereumGetAddress struct {
	AddressN    []uint32
	ShowDisplay bool
}

func DecodeEthereumGetAddress(b []byte) (*EthereumGetAddress, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EthereumGetAddress{
		AddressN:    decodePath(d.BytesField(tagEthA)),
		ShowDisplay: d.Bool(tagEthB, false),
	}, nil
}

// EthereumAddress answers EthereumGetAddress with a checksummed hex
// address.
type EthereumAddress struct {
	Address string
}

func (m *EthereumAddress) Encode() []byte {
	e := NewEncoder()
	e.String(tagEthA, m.Address)
	return e.Bytes()
}

// EthereumSignTx starts the Ethereum signing pipeline of spec §4.8. DataLength
// is the total length of Data across all EthereumTxAck chunks when it
// exceeds one message.
type EthereumSignTx struct {
	AddressN    []uint32
	Nonce       []byte
	GasPrice    []byte
	GasLimit    []byte
	To          []byte
	Value       []byte
	Data        []byte
	DataLength  uint32
	ChainID     uint64
}

func DecodeEthereumSignTx(b []byte) (*EthereumSignTx, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EthereumSignTx{
		AddressN:   decodePath(d.BytesField(tagEthA)),
		Nonce:      d.BytesField(tagEthB),
		GasPrice:   d.BytesField(tagEthC),
		GasLimit:   d.BytesField(tagEthD),
		To:         d.BytesField(tagEthE),
		Value:      d.BytesField(tagEthF),
		Data:       d.BytesField(tagEthG),
		DataLength: d.Uint32(tagEthH, 0),
		ChainID:    d.Uint64(tagEthI, 0),
	}, nil
}

// EthereumTxAck carries one chunk of the data field when it does not fit
// in a single EthereumSignTx message.
type EthereumTxAck struct {
	DataChunk []byte
}

func DecodeEthereumTxAck(b []byte) (*EthereumTxAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EthereumTxAck{DataChunk: d.BytesField(tagEthA)}, nil
}

// EthereumMessageSignature answers EthereumSignTx with the (v, r, s)
// triple packed as a 65-byte signature, and EthereumSignMessage with the
// signing address plus signature.
type EthereumMessageSignature struct {
	Address   string
	Signature []byte
}

func (m *EthereumMessageSignature) Encode() []byte {
	e := NewEncoder()
	e.String(tagEthA, m.Address)
	e.BytesField(tagEthB, m.Signature)
	return e.Bytes()
}

// EthereumSignMessage signs an arbitrary message per EIP-191.
type EthereumSignMessage struct {
	AddressN []uint32
	Message  []byte
}

func DecodeEthereumSignMessage(b []byte) (*EthereumSignMessage, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EthereumSignMessage{
		AddressN: decodePath(d.BytesField(tagEthA)),
		Message:  d.BytesField(tagEthB),
	}, nil
}

// EthereumVerifyMessage checks a message signature against a claimed
// address.
type EthereumVerifyMessage struct {
	Address   string
	Signature []byte
	Message   []byte
}

func DecodeEthereumVerifyMessage(b []byte) (*EthereumVerifyMessage, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EthereumVerifyMessage{
		Address:   d.String(tagEthA, ""),
		Signature: d.BytesField(tagEthB),
		Message:   d.BytesField(tagEthC),
	}, nil
}
