// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"testing"

	"github.com/usbarmory/walletfw/message"
)

type recordingSink struct {
	messages []struct {
		t       message.Type
		payload []byte
	}
	segments []struct {
		t     message.Type
		data  []byte
		total uint32
	}
}

func (s *recordingSink) Message(t message.Type, payload []byte) {
	s.messages = append(s.messages, struct {
		t       message.Type
		payload []byte
	}{t, append([]byte(nil), payload...)})
}

func (s *recordingSink) RawSegment(t message.Type, segment []byte, total uint32) {
	s.segments = append(s.segments, struct {
		t     message.Type
		data  []byte
		total uint32
	}{t, append([]byte(nil), segment...), total})
}

func TestFramerRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 200)

	frames := Output(message.TypePing, payload)
	if len(frames) < 2 {
		t.Fatalf("expected multi-frame output, got %d frames", len(frames))
	}

	sink := &recordingSink{}
	f := NewFramer(sink)

	for _, frame := range frames {
		f.Input(frame)
	}

	if len(sink.messages) != 1 {
		t.Fatalf("expected 1 reassembled message, got %d", len(sink.messages))
	}

	got := sink.messages[0]
	if got.t != message.TypePing {
		t.Fatalf("type = %v, want Ping", got.t)
	}
	if !bytes.Equal(got.payload, payload) {
		t.Fatalf("payload round-trip mismatch: got %d bytes, want %d", len(got.payload), len(payload))
	}
}

func TestFramerRawStreaming(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44}, 40)

	frames := Output(message.TypeFirmwareUpload, payload)

	sink := &recordingSink{}
	f := NewFramer(sink)

	for _, frame := range frames {
		f.Input(frame)
	}

	if len(sink.messages) != 0 {
		t.Fatalf("raw type must not reach Message(), got %d", len(sink.messages))
	}

	var reassembled []byte
	for _, seg := range sink.segments {
		if seg.total != uint32(len(payload)) {
			t.Fatalf("segment declared total = %d, want %d", seg.total, len(payload))
		}
		reassembled = append(reassembled, seg.data...)
	}

	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("raw payload round-trip mismatch")
	}
}

func TestFramerRuntPacketDropped(t *testing.T) {
	sink := &recordingSink{}
	f := NewFramer(sink)

	f.Input([]byte{ReportByte, '#'}) // too short for a header

	if f.Counters().Runt != 1 {
		t.Fatalf("runt counter = %d, want 1", f.Counters().Runt)
	}
	if len(sink.messages) != 0 {
		t.Fatalf("runt packet must not produce a message")
	}
}

func TestFramerInvalidPreamble(t *testing.T) {
	sink := &recordingSink{}
	f := NewFramer(sink)

	packet := make([]byte, FrameSize)
	packet[0] = ReportByte
	packet[1] = 'X'
	packet[2] = 'X'

	f.Input(packet)

	if f.Counters().InvalidUSBHeader != 1 {
		t.Fatalf("invalid header counter = %d, want 1", f.Counters().InvalidUSBHeader)
	}
}

func TestFramerOversizeRejected(t *testing.T) {
	sink := &recordingSink{}
	f := NewFramer(sink)

	packet := make([]byte, FrameSize)
	packet[0] = ReportByte
	packet[1], packet[2] = '#', '#'
	// declare a length far beyond MaxNormalPayload for a non-raw type
	packet[3], packet[4] = 0, byte(message.TypePing)
	packet[5], packet[6], packet[7], packet[8] = 0xff, 0xff, 0xff, 0xff

	f.Input(packet)

	if f.Counters().Oversize != 1 {
		t.Fatalf("oversize counter = %d, want 1", f.Counters().Oversize)
	}
}

func TestFramerStrayPreambleMidMessageIgnored(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7e}, 100)
	frames := Output(message.TypePing, payload)

	// Corrupt the start of a continuation frame's payload to look like a
	// preamble; it must still be treated as continuation data.
	frames[1][1] = '#'
	frames[1][2] = '#'

	sink := &recordingSink{}
	f := NewFramer(sink)
	for _, frame := range frames {
		f.Input(frame)
	}

	if len(sink.messages) != 1 {
		t.Fatalf("expected reassembly to still complete, got %d messages", len(sink.messages))
	}
}
