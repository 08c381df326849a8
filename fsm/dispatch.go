// Handler registration and Initialize/Cancel reset semantics
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fsm

import "github.com/usbarmory/walletfw/message"

// Handler processes a decoded request payload and returns the wire type
// and payload of the single synchronous reply record.
type Handler func(payload []byte) (replyType message.Type, replyPayload []byte)

// RawHandler processes one streamed segment of a raw (undecoded) message;
// total is the declared length from the first frame (spec §4.1). Only
// FirmwareUpload is raw today.
type RawHandler func(segment []byte, total uint32)

// Table is one mode's dispatch table: a fixed set of Normal-class
// handlers plus, for the bootloader, one Raw-class handler.
type Table struct {
	handlers map[message.Type]Handler
	raw      map[message.Type]RawHandler
}

// NewTable returns an empty Table ready for registration.
func NewTable() *Table {
	return &Table{
		handlers: make(map[message.Type]Handler),
		raw:      make(map[message.Type]RawHandler),
	}
}

// Handle registers h as the Normal-class handler for typ, returning t for
// chaining.
func (t *Table) Handle(typ message.Type, h Handler) *Table {
	t.handlers[typ] = h
	return t
}

// HandleRaw registers h as the Raw-class handler for typ, returning t for
// chaining.
func (t *Table) HandleRaw(typ message.Type, h RawHandler) *Table {
	t.raw[typ] = h
	return t
}

// Accepts reports whether typ has a registered Normal or Raw handler.
func (t *Table) Accepts(typ message.Type) bool {
	if _, ok := t.handlers[typ]; ok {
		return true
	}
	_, ok := t.raw[typ]
	return ok
}

// Dispatcher selects between the bootloader and application tables and
// implements the Initialize-is-a-reset-point / Cancel-is-idempotent
// semantics of spec §4.2. Its Message/RawSegment methods give it the
// shape of transport.Sink, so it is wired directly as a Framer's sink by
// the device package.
type Dispatcher struct {
	mode   Mode
	tables map[Mode]*Table

	onInitialize func()
	onCancel     func()

	// suppressNextFailure implements spec §4.2's "the engine keeps a flag
	// that suppresses one subsequent failure reply so the partner sees
	// only the fresh Features": it is armed for the duration of
	// Initialize's own dispatch and consumed by at most one EmitFailure
	// call triggered by onInitialize unwinding an in-progress operation.
	suppressNextFailure bool

	emit func(t message.Type, payload []byte)
}

// NewDispatcher returns a Dispatcher starting in startMode, serving
// bootloader and application out of their respective tables and sending
// replies through emit.
func NewDispatcher(startMode Mode, bootloader, application *Table, emit func(message.Type, []byte)) *Dispatcher {
	return &Dispatcher{
		mode: startMode,
		tables: map[Mode]*Table{
			Bootloader:  bootloader,
			Application: application,
		},
		emit: emit,
	}
}

// Mode returns the currently active table selector.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// SetMode switches tables; used once at startup and never again (spec
// §4.2 gives no host-triggered mode transition within this module's
// scope — see SPEC_FULL.md Non-goals on remote bootloader entry).
func (d *Dispatcher) SetMode(m Mode) {
	d.mode = m
}

// OnInitialize registers the callback invoked synchronously whenever an
// Initialize arrives, before Initialize's own handler runs. f is expected
// to abort any in-progress recovery/signing session and clear transient
// state (spec §4.2).
func (d *Dispatcher) OnInitialize(f func()) {
	d.onInitialize = f
}

// OnCancel registers the callback invoked whenever a Cancel arrives.
// Cancel is idempotent: f must tolerate being called with nothing in
// progress.
func (d *Dispatcher) OnCancel(f func()) {
	d.onCancel = f
}

// Emit sends an out-of-band reply (e.g. an interactive ButtonRequest or
// TxRequest) outside of a handler's own return value.
func (d *Dispatcher) Emit(t message.Type, payload []byte) {
	d.emit(t, payload)
}

// EmitFailure sends a Failure record unless it is consumed by the
// Initialize suppression flag (spec §4.2).
func (d *Dispatcher) EmitFailure(code message.FailureCode, msg string) {
	if d.suppressNextFailure {
		d.suppressNextFailure = false
		return
	}
	d.emit(message.TypeFailure, (&message.Failure{Code: code, Message: msg}).Encode())
}

// Message implements transport.Sink for Normal-class messages.
func (d *Dispatcher) Message(t message.Type, payload []byte) {
	switch t {
	case message.TypeInitialize:
		d.suppressNextFailure = true
		if d.onInitialize != nil {
			d.onInitialize()
		}
	case message.TypeCancel:
		if d.onCancel != nil {
			d.onCancel()
		}
	}

	table := d.tables[d.mode]

	h, ok := table.handlers[t]
	if !ok {
		d.EmitFailure(message.UnexpectedMessage, "")
		d.suppressNextFailure = false
		return
	}

	replyType, replyPayload := h(payload)
	// replyType zero is the "no synchronous reply" sentinel: a handler
	// that needs to confirm out-of-band (spec §4.3's button-hold dance)
	// replies later via Emit, from its own goroutine, instead of
	// returning a reply here.
	if replyType != 0 {
		d.emit(replyType, replyPayload)
	}
	d.suppressNextFailure = false
}

// RawSegment implements transport.Sink for Raw-class messages.
func (d *Dispatcher) RawSegment(t message.Type, segment []byte, total uint32) {
	table := d.tables[d.mode]

	if h, ok := table.raw[t]; ok {
		h(segment, total)
		return
	}

	d.EmitFailure(message.UnexpectedMessage, "")
}
