// USB HID frame reassembly and segmentation
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package transport multiplexes typed messages over fixed 64-byte USB HID
// packets (spec §4.1/§6). It is grounded on the segment-at-a-time RX loop
// of imx6/usb/endpoint_handler.go and the field-by-field parsing style of
// imx6/usb/setup.go's getSetup/doSetup.
package transport

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/usbarmory/walletfw/message"
)

const (
	// FrameSize is the fixed HID report size (spec §6).
	FrameSize = 64

	// ReportByte is the HID report id prefixing every frame.
	ReportByte = '?'

	preambleLen = 2
	typeLen     = 2
	lengthLen   = 4

	// HeaderLen is report byte + preamble + type + length.
	HeaderLen = 1 + preambleLen + typeLen + lengthLen

	// FirstPayloadCap is the payload capacity of a first frame.
	FirstPayloadCap = FrameSize - HeaderLen

	// ContPayloadCap is the payload capacity of a continuation frame.
	ContPayloadCap = FrameSize - 1

	// MaxNormalPayload bounds schema-decoded messages (spec §4.1); well
	// above any realistic wallet request/response.
	MaxNormalPayload = 16 * 1024

	// MaxRawPayload bounds raw (firmware upload) messages; must cover
	// the largest application image the bootloader will ever accept.
	MaxRawPayload = 8 * 1024 * 1024
)

var preamble = [preambleLen]byte{'#', '#'}

// Counters tracks the non-fatal framer failure classes of spec §4.1.
// Fields are accessed with the atomic package so the single-threaded main
// loop and any diagnostic reader (e.g. a DebugLink handler) can share it
// without a mutex.
type Counters struct {
	Runt             int64
	InvalidUSBHeader int64
	UnknownDispatch  int64
	Oversize         int64
	USBTx            int64
	USBTxErr         int64
}

func (c *Counters) incr(p *int64) {
	atomic.AddInt64(p, 1)
}

// Sink receives fully reassembled or streamed messages. Exactly one of
// Message or RawSegment is called per inbound event, selected by
// message.IsRaw(t) on the type carried in the first frame.
type Sink interface {
	// Message is invoked once, after the declared length of a normal
	// message has been fully received.
	Message(t message.Type, payload []byte)

	// RawSegment is invoked once per received frame's worth of payload
	// for a raw message type; total is the declared length from the
	// first frame's header. The sink owns its own offset bookkeeping
	// (spec §4.1), matching the firmware upload engine's design.
	RawSegment(t message.Type, segment []byte, total uint32)
}

// Framer reassembles inbound frames and classifies/dispatches them to a
// Sink. It is not safe for concurrent use — the device is strictly
// single-threaded (spec §5).
type Framer struct {
	sink     Sink
	counters Counters

	assembling bool
	raw        bool
	msgType    message.Type
	declared   uint32
	received   uint32
	buf        []byte
}

// NewFramer returns a Framer delivering reassembled messages to sink.
func NewFramer(sink Sink) *Framer {
	return &Framer{sink: sink}
}

// Counters returns the live failure counters.
func (f *Framer) Counters() *Counters {
	return &f.counters
}

// Reset aborts any in-progress reassembly, as happens when Initialize
// arrives mid-message (spec §4.2) or on a fresh session.
func (f *Framer) Reset() {
	f.assembling = false
	f.raw = false
	f.msgType = 0
	f.declared = 0
	f.received = 0
	f.buf = nil
}

// Input feeds one inbound HID packet (exactly FrameSize bytes) into the
// framer. A packet shorter than the minimum header is a "runt" and is
// dropped silently per spec §4.1, except that mid-message continuation
// frames only require 1 byte (the report marker).
func (f *Framer) Input(packet []byte) {
	if len(packet) == 0 {
		f.counters.incr(&f.counters.Runt)
		return
	}

	body := packet[1:] // strip report byte; its value is not validated

	if !f.assembling {
		f.startFirstFrame(body)
		return
	}

	// A stray preamble inside a continuation is ignored on purpose (spec
	// §4.1): only accept a fresh first frame when not already mid-message.
	f.appendContinuation(body)
}

func (f *Framer) startFirstFrame(body []byte) {
	if len(body) < preambleLen+typeLen+lengthLen {
		f.counters.incr(&f.counters.Runt)
		return
	}

	if body[0] != preamble[0] || body[1] != preamble[1] {
		f.counters.incr(&f.counters.InvalidUSBHeader)
		return
	}

	msgType := message.Type(binary.BigEndian.Uint16(body[preambleLen:]))
	declared := binary.BigEndian.Uint32(body[preambleLen+typeLen:])

	maxPayload := uint32(MaxNormalPayload)
	if message.IsRaw(msgType) {
		maxPayload = MaxRawPayload
	}

	if declared > maxPayload {
		f.counters.incr(&f.counters.Oversize)
		return
	}

	payload := body[preambleLen+typeLen+lengthLen:]
	if uint32(len(payload)) > declared {
		payload = payload[:declared]
	}

	f.msgType = msgType
	f.declared = declared
	f.received = uint32(len(payload))
	f.raw = message.IsRaw(msgType)
	f.assembling = true

	if f.raw {
		f.buf = nil
		if len(payload) > 0 {
			f.sink.RawSegment(msgType, payload, declared)
		}
	} else {
		f.buf = make([]byte, 0, declared)
		f.buf = append(f.buf, payload...)
	}

	f.maybeFinish()
}

func (f *Framer) appendContinuation(body []byte) {
	remaining := f.declared - f.received
	n := uint32(len(body))
	if n > remaining {
		n = remaining
	}
	chunk := body[:n]
	f.received += n

	if f.raw {
		if n > 0 {
			f.sink.RawSegment(f.msgType, chunk, f.declared)
		}
	} else {
		f.buf = append(f.buf, chunk...)
	}

	f.maybeFinish()
}

func (f *Framer) maybeFinish() {
	if f.received < f.declared {
		return
	}

	msgType, buf := f.msgType, f.buf
	f.Reset()

	if !message.IsRaw(msgType) {
		f.sink.Message(msgType, buf)
	}
}

// Output encodes one outbound message as a slice of FrameSize-byte HID
// packets: one first frame (preamble + type + length + payload prefix)
// followed by continuation frames until payload is drained, per spec §6.
func Output(t message.Type, payload []byte) [][]byte {
	var frames [][]byte

	first := make([]byte, FrameSize)
	first[0] = ReportByte
	first[1] = preamble[0]
	first[2] = preamble[1]
	binary.BigEndian.PutUint16(first[preambleLen+1:], uint16(t))
	binary.BigEndian.PutUint32(first[preambleLen+typeLen+1:], uint32(len(payload)))

	n := copy(first[HeaderLen:], payload)
	frames = append(frames, first)
	payload = payload[n:]

	for len(payload) > 0 {
		frame := make([]byte, FrameSize)
		frame[0] = ReportByte
		n := copy(frame[1:], payload)
		payload = payload[n:]
		frames = append(frames, frame)
	}

	return frames
}
