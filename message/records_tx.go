// Bitcoin-style interactive transaction signing records
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package message

const (
	tagTxA uint8 = iota + 1
	tagTxB
	tagTxC
	tagTxD
	tagTxE
	tagTxF
	tagTxG
	tagTxH
	tagTxI
	tagTxJ
	tagTxK
	tagTxL
)

// TxRequestType selects which half of the per-input/per-output pass of
// spec §4.8 a TxRequest is asking for.
type TxRequestType int

const (
	TxRequestInput TxRequestType = iota
	TxRequestOutput
	TxRequestMeta
	TxRequestFinished
	TxRequestInputSig
)

// SignTx starts the interactive signing state machine (spec §4.8).
type SignTx struct {
	InputsCount  uint32
	OutputsCount uint32
	CoinName     string
	Version      uint32
	LockTime     uint32
}

func DecodeSignTx(b []byte) (*SignTx, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &SignTx{
		InputsCount:  d.Uint32(tagTxA, 0),
		OutputsCount: d.Uint32(tagTxB, 0),
		CoinName:     d.String(tagTxC, "Bitcoin"),
		Version:      d.Uint32(tagTxD, 1),
		LockTime:     d.Uint32(tagTxE, 0),
	}, nil
}

// EstimateTxSize is the supplemented cheap pre-flight size check (see
// SPEC_FULL.md) that skips the full interactive engine.
type EstimateTxSize struct {
	InputsCount  uint32
	OutputsCount uint32
	CoinName     string
}

func DecodeEstimateTxSize(b []byte) (*EstimateTxSize, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &EstimateTxSize{
		InputsCount:  d.Uint32(tagTxA, 0),
		OutputsCount: d.Uint32(tagTxB, 0),
		CoinName:     d.String(tagTxC, "Bitcoin"),
	}, nil
}

// TxSize answers EstimateTxSize.
type TxSize struct {
	VirtualSize uint32
}

func (m *TxSize) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagTxA, m.VirtualSize)
	return e.Bytes()
}

// TxRequest drives the host through the per-input/per-output pass.
type TxRequest struct {
	RequestType    TxRequestType
	RequestIndex   uint32
	SignatureIndex uint32
	Signature      []byte
	SerializedTx   []byte
}

func (m *TxRequest) Encode() []byte {
	e := NewEncoder()
	e.Uint32(tagTxA, uint32(m.RequestType))
	e.Uint32(tagTxB, m.RequestIndex)
	e.Uint32(tagTxC, m.SignatureIndex)
	if m.Signature != nil {
		e.BytesField(tagTxD, m.Signature)
	}
	if m.SerializedTx != nil {
		e.BytesField(tagTxE, m.SerializedTx)
	}
	return e.Bytes()
}

// ExchangeContract is the embedded signed deposit/return/withdrawal
// contract of spec §4.8, one of the supplemented features in
// SPEC_FULL.md.
type ExchangeContract struct {
	DepositAddress      string
	DepositAmount       uint64
	ReturnAddress        string
	ReturnAddressN       []uint32
	WithdrawalAddress    string
	WithdrawalAddressN   []uint32
	WithdrawalAmount     uint64
	WithdrawalCoin       string
	QuotedRatePercent    uint32
	AccountNumber        uint32
	ResponseBlob         []byte
	ResponseSignature    []byte
}

func (m *ExchangeContract) encode() []byte {
	e := NewEncoder()
	e.String(tagTxA, m.DepositAddress)
	e.Uint64(tagTxB, m.DepositAmount)
	e.String(tagTxC, m.ReturnAddress)
	e.BytesField(tagTxD, encodePath(m.ReturnAddressN))
	e.String(tagTxE, m.WithdrawalAddress)
	e.BytesField(tagTxF, encodePath(m.WithdrawalAddressN))
	e.Uint64(tagTxG, m.WithdrawalAmount)
	e.String(tagTxH, m.WithdrawalCoin)
	e.Uint32(tagTxI, m.QuotedRatePercent)
	e.Uint32(tagTxJ, m.AccountNumber)
	e.BytesField(tagTxK, m.ResponseBlob)
	e.BytesField(tagTxL, m.ResponseSignature)
	return e.Bytes()
}

func decodeExchangeContract(b []byte) (*ExchangeContract, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &ExchangeContract{
		DepositAddress:     d.String(tagTxA, ""),
		DepositAmount:      d.Uint64(tagTxB, 0),
		ReturnAddress:      d.String(tagTxC, ""),
		ReturnAddressN:     decodePath(d.BytesField(tagTxD)),
		WithdrawalAddress:  d.String(tagTxE, ""),
		WithdrawalAddressN: decodePath(d.BytesField(tagTxF)),
		WithdrawalAmount:   d.Uint64(tagTxG, 0),
		WithdrawalCoin:     d.String(tagTxH, ""),
		QuotedRatePercent:  d.Uint32(tagTxI, 0),
		AccountNumber:      d.Uint32(tagTxJ, 0),
		ResponseBlob:       d.BytesField(tagTxK),
		ResponseSignature:  d.BytesField(tagTxL),
	}, nil
}

// TxInput is one previous-output reference consumed by the transaction
// being signed.
type TxInput struct {
	PrevHash   []byte
	PrevIndex  uint32
	ScriptSig  []byte
	Sequence   uint32
	AddressN   []uint32
	Amount     uint64
	ScriptType string
}

// TxOutput is one destination of the transaction being signed, optionally
// carrying an embedded exchange contract (spec §4.8).
type TxOutput struct {
	Address    string
	AddressN   []uint32
	Amount     uint64
	ScriptType string
	Exchange   *ExchangeContract
}

// TxAck answers a TxRequest with exactly one of Input or Output, matching
// the request that prompted it.
type TxAck struct {
	Input  *TxInput
	Output *TxOutput
}

func DecodeTxAck(b []byte) (*TxAck, error) {
	d, err := Decode(b)
	if err != nil {
		return nil, err
	}

	ack := &TxAck{}

	if raw := d.BytesField(tagTxA); raw != nil {
		id, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		ack.Input = &TxInput{
			PrevHash:   id.BytesField(tagTxA),
			PrevIndex:  id.Uint32(tagTxB, 0),
			ScriptSig:  id.BytesField(tagTxC),
			Sequence:   id.Uint32(tagTxD, 0xffffffff),
			AddressN:   decodePath(id.BytesField(tagTxE)),
			Amount:     id.Uint64(tagTxF, 0),
			ScriptType: id.String(tagTxG, "SPENDADDRESS"),
		}
	}

	if raw := d.BytesField(tagTxB); raw != nil {
		od, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		out := &TxOutput{
			Address:    od.String(tagTxA, ""),
			AddressN:   decodePath(od.BytesField(tagTxB)),
			Amount:     od.Uint64(tagTxC, 0),
			ScriptType: od.String(tagTxD, "PAYTOADDRESS"),
		}
		if raw := od.BytesField(tagTxE); raw != nil {
			ex, err := decodeExchangeContract(raw)
			if err != nil {
				return nil, err
			}
			out.Exchange = ex
		}
		ack.Output = out
	}

	return ack, nil
}

// EncodeTxAck is provided for tests and the bootstrap simulator host side
// that must synthesize acks without a full host stack.
func EncodeTxAck(ack *TxAck) []byte {
	e := NewEncoder()

	if in := ack.Input; in != nil {
		ie := NewEncoder()
		ie.BytesField(tagTxA, in.PrevHash)
		ie.Uint32(tagTxB, in.PrevIndex)
		ie.BytesField(tagTxC, in.ScriptSig)
		ie.Uint32(tagTxD, in.Sequence)
		ie.BytesField(tagTxE, encodePath(in.AddressN))
		ie.Uint64(tagTxF, in.Amount)
		ie.String(tagTxG, in.ScriptType)
		e.BytesField(tagTxA, ie.Bytes())
	}

	if out := ack.Output; out != nil {
		oe := NewEncoder()
		oe.String(tagTxA, out.Address)
		oe.BytesField(tagTxB, encodePath(out.AddressN))
		oe.Uint64(tagTxC, out.Amount)
		oe.String(tagTxD, out.ScriptType)
		if out.Exchange != nil {
			oe.BytesField(tagTxE, out.Exchange.encode())
		}
		e.BytesField(tagTxB, oe.Bytes())
	}

	return e.Bytes()
}
