// Cosmos-style signing records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

const (
	tagCosA uint8 = iota + 1
	tagCosB
	tagCosC
	tagCosD
	tagCosE
	tagCosF
	tagCosG
	tagCosH
)

// CosmosSignTx starts the Cosmos JSON-canonicalization signing pipeline of
// spec §4.8.
type CosmosSignTx struct {
	AddressN     []uint32
	AccountNumber uint64
	ChainID      string
	FeeAmount    uint64
	FeeDenom     string
	Sequence     uint64
	MsgCount     uint32
	Memo         string
}

func DecodeCosmosSignTx(b []byte) (*CosmosSignTx, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &CosmosSignTx{
		AddressN:      decodePath(d.BytesField(tagCosA)),
		AccountNumber: d.Uint64(tagCosB, 0),
		ChainID:       d.String(tagCosC, ""),
		Sequence:      d.Uint64(tagCosD, 0),
		MsgCount:      d.Uint32(tagCosE, 0),
		FeeAmount:     d.Uint64(tagCosF, 0),
		FeeDenom:      d.String(tagCosG, ""),
		Memo:          d.String(tagCosH, ""),
	}, nil
}

// CosmosTxRequest asks the host for the next message in the canonical
// sign-doc, one at a time, the same streaming shape as Bitcoin's TxRequest.
type CosmosTxRequest struct {
	MessageIndex uint32
	Finished     bool
	Signature    []byte
}

func (m *CosmosTxRequest) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagCosA, m.MessageIndex)
	e.Bool(tagCosB, m.Finished)
	if m.Signature != nil {
		e.BytesField(tagCosC, m.Signature)
	}
	return e.Bytes()
}

// CosmosTxAck carries one raw canonical-JSON message fragment for the
// streaming SHA-256 commitment.
type CosmosTxAck struct {
	MessageJSON []byte
}

func DecodeCosmosTxAck(b []byte) (*CosmosTxAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &CosmosTxAck{MessageJSON: d.BytesField(tagCosA)}, nil
}
