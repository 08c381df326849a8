// End-to-end scenarios driving Device through its dispatcher
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/usbarmory/walletfw/board/simulator"
	"github.com/usbarmory/walletfw/fsm"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/storage"
	"github.com/usbarmory/walletfw/transport"
)

// testMnemonic is the well-known all-"abandon" BIP-39 test vector; its
// m/44'/0'/0'/0/0 Bitcoin address is widely published and used here to
// assert GetAddress returns an exact, known value rather than merely a
// well-formed one.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const testMnemonicAddress = "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"

// recvMsg is one reassembled reply the test harness observed.
type recvMsg struct {
	typ     message.Type
	payload []byte
}

// msgSink feeds every reassembled device reply onto ch, implementing
// transport.Sink the way the dispatcher does on the device side.
type msgSink struct {
	ch chan recvMsg
}

func (s *msgSink) Message(t message.Type, payload []byte) {
	s.ch <- recvMsg{t, payload}
}

func (s *msgSink) RawSegment(t message.Type, segment []byte, total uint32) {}

// captureEndpoint is a board.Endpoint whose Write calls are fanned into a
// transport.Framer wired to a msgSink, so tests observe replies as
// reassembled (type, payload) pairs instead of raw 64-byte HID frames.
// Read is never exercised: tests drive the dispatcher directly rather
// than running Device.Run's frame pump.
type captureEndpoint struct {
	framer *transport.Framer
}

func newCaptureEndpoint(ch chan recvMsg) *captureEndpoint {
	return &captureEndpoint{framer: transport.NewFramer(&msgSink{ch: ch})}
}

func (e *captureEndpoint) Read(report []byte) (int, error) {
	<-make(chan struct{}) // never returns; tests do not call Run
	return 0, nil
}

func (e *captureEndpoint) Write(report []byte) (int, error) {
	e.framer.Input(report)
	return len(report), nil
}

// newTestDevice assembles a Device over board/simulator and a temp-file
// storage.Store, returning the reply channel fed by every Emit/handler
// reply.
func newTestDevice(t *testing.T, mode fsm.Mode) (*Device, chan recvMsg, *simulator.Button) {
	t.Helper()

	dir := t.TempDir()
	var paths [storage.SlotCount]string
	for i := range paths {
		paths[i] = filepath.Join(dir, "slot"+string(rune('A'+i)))
	}

	store, err := storage.Open(paths, nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	button := &simulator.Button{}
	ch := make(chan recvMsg, 64)

	d, err := New(Config{
		Flash:     simulator.NewFlash(1 << 20),
		Display:   simulator.NewDisplay(nil),
		Button:    button,
		Timer:     simulator.Timer{},
		Endpoint:  newCaptureEndpoint(ch),
		Store:     store,
		StartMode: mode,
		Logger:    log.New(nil, "", 0),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return d, ch, button
}

// send drives payload through the dispatcher synchronously, exactly as
// Device.Run's frame pump would for a single reassembled message.
func send(d *Device, typ message.Type, payload []byte) {
	d.dispatcher.Message(typ, payload)
}

func mustRecv(t *testing.T, ch chan recvMsg, timeout time.Duration) recvMsg {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a reply")
		return recvMsg{}
	}
}

func expectNoRecv(t *testing.T, ch chan recvMsg, d time.Duration) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected reply %v", m.typ)
	case <-time.After(d):
	}
}

func encodeLoadDevice(mnemonic, pin, label string, passphraseProtection bool) []byte {
	e := message.NewEncoder()
	e.String(1, mnemonic)
	e.String(2, pin)
	e.Bool(3, passphraseProtection)
	e.String(4, label)
	return e.Bytes()
}

func encodeGetAddress(path []uint32, coinName string, show bool) []byte {
	e := message.NewEncoder()
	pathBytes := make([]byte, 4*len(path))
	for i, v := range path {
		pathBytes[i*4] = byte(v >> 24)
		pathBytes[i*4+1] = byte(v >> 16)
		pathBytes[i*4+2] = byte(v >> 8)
		pathBytes[i*4+3] = byte(v)
	}
	e.BytesField(1, pathBytes)
	e.String(2, coinName)
	e.Bool(3, show)
	return e.Bytes()
}

func encodePinMatrixAck(positions string) []byte {
	e := message.NewEncoder()
	e.String(1, positions)
	return e.Bytes()
}

// TestInitializeFreshDevice covers scenario S1: a never-provisioned
// device answers Initialize with Features reporting the default vendor,
// Initialized=false, and whichever mode it booted into.
func TestInitializeFreshDevice(t *testing.T) {
	d, ch, _ := newTestDevice(t, fsm.Application)

	send(d, message.TypeInitialize, (&message.Initialize{}).Encode())

	m := mustRecv(t, ch, time.Second)
	if m.typ != message.TypeFeatures {
		t.Fatalf("reply type = %v, want Features", m.typ)
	}

	f, err := decodeFeatures(m.payload)
	if err != nil {
		t.Fatalf("decode features: %v", err)
	}
	if f.Vendor != "keepkey.com" {
		t.Fatalf("Vendor = %q, want keepkey.com", f.Vendor)
	}
	if f.Initialized {
		t.Fatal("Initialized = true on a fresh device")
	}
	if f.BootloaderMode {
		t.Fatal("BootloaderMode = true, want false (StartMode was Application)")
	}
}

// decodeFeatures mirrors message.Features' own tag layout, since Features
// only exposes Encode (the device is the only producer; a host-side
// decoder has no reason to exist in package message).
type decodedFeatures struct {
	Vendor         string
	Initialized    bool
	BootloaderMode bool
	PinProtection  bool
}

func decodeFeatures(b []byte) (*decodedFeatures, error) {
	d, err := message.Decode(b)
	if err != nil {
		return nil, err
	}
	return &decodedFeatures{
		Vendor:         d.String(1, ""),
		BootloaderMode: d.Bool(5, false),
		Initialized:    d.Bool(6, false),
		PinProtection:  d.Bool(7, false),
	}, nil
}

// TestLoadDeviceThenGetAddress covers scenario S2: LoadDevice with a
// known mnemonic and no PIN, then GetAddress returns the expected address
// without any PIN/passphrase prompt.
func TestLoadDeviceThenGetAddress(t *testing.T) {
	d, ch, _ := newTestDevice(t, fsm.Application)

	send(d, message.TypeLoadDevice, encodeLoadDevice(testMnemonic, "", "", false))
	m := mustRecv(t, ch, time.Second)
	if m.typ != message.TypeSuccess {
		t.Fatalf("LoadDevice reply = %v, want Success", m.typ)
	}

	path := []uint32{44 | hardened, 0 | hardened, 0 | hardened, 0, 0}
	send(d, message.TypeGetAddress, encodeGetAddress(path, "Bitcoin", false))

	m = mustRecv(t, ch, time.Second)
	if m.typ != message.TypeAddress {
		t.Fatalf("GetAddress reply = %v, want Address", m.typ)
	}

	dec, err := message.Decode(m.payload)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if got := dec.String(5, ""); got != testMnemonicAddress {
		t.Fatalf("address = %q, want %q", got, testMnemonicAddress)
	}
}

const hardened = uint32(0x80000000)

// TestWipeDeviceRequiresButtonHold exercises the async+confirm pipeline
// end to end: WipeDevice blocks on a ButtonRequest until the simulated
// button is held for the full confirmation window.
func TestWipeDeviceRequiresButtonHold(t *testing.T) {
	d, ch, button := newTestDevice(t, fsm.Application)

	send(d, message.TypeLoadDevice, encodeLoadDevice(testMnemonic, "", "", false))
	mustRecv(t, ch, time.Second)

	send(d, message.TypeWipeDevice, (&message.WipeDevice{}).Encode())

	br := mustRecv(t, ch, time.Second)
	if br.typ != message.TypeButtonRequest {
		t.Fatalf("reply type = %v, want ButtonRequest", br.typ)
	}

	send(d, message.TypeButtonAck, (&message.ButtonAck{}).Encode())

	go button.Hold(2 * time.Second)

	result := mustRecv(t, ch, 3*time.Second)
	if result.typ != message.TypeSuccess {
		t.Fatalf("WipeDevice result = %v, want Success", result.typ)
	}

	send(d, message.TypeInitialize, (&message.Initialize{}).Encode())
	m := mustRecv(t, ch, time.Second)
	f, err := decodeFeatures(m.payload)
	if err != nil {
		t.Fatalf("decode features: %v", err)
	}
	if f.Initialized {
		t.Fatal("device reports Initialized=true after a successful wipe")
	}
}

// TestSignTxInterruptedByInitialize covers scenario S5: a fresh
// Initialize arriving mid-signature abandons the in-progress SignTx
// session without emitting a stale TxRequest/Failure for it.
func TestSignTxInterruptedByInitialize(t *testing.T) {
	d, ch, _ := newTestDevice(t, fsm.Application)

	send(d, message.TypeLoadDevice, encodeLoadDevice(testMnemonic, "", "", false))
	mustRecv(t, ch, time.Second)

	sigTx := message.NewEncoder()
	sigTx.Uint32(1, 1)
	sigTx.Uint32(2, 1)
	sigTx.String(3, "Bitcoin")
	sigTx.Uint32(4, 1)
	sigTx.Uint32(5, 0)
	send(d, message.TypeSignTx, sigTx.Bytes())

	txReq := mustRecv(t, ch, time.Second)
	if txReq.typ != message.TypeTxRequest {
		t.Fatalf("SignTx first reply = %v, want TxRequest", txReq.typ)
	}

	send(d, message.TypeInitialize, (&message.Initialize{}).Encode())

	m := mustRecv(t, ch, time.Second)
	if m.typ != message.TypeFeatures {
		t.Fatalf("reply after Initialize = %v, want Features", m.typ)
	}

	expectNoRecv(t, ch, 200*time.Millisecond)

	d.mu.Lock()
	sess := d.txSession
	d.mu.Unlock()
	if sess != nil {
		t.Fatal("txSession still set after Initialize abandoned it")
	}
}

// TestWrongPinDoesNotUnlock covers scenario S6: a PinMatrixAck that
// cannot possibly translate to the stored PIN is rejected and a fresh
// PinMatrixRequest is issued, without unlocking the session. Only the
// first two failures are exercised here since pin.Backoff introduces no
// delay below three consecutive failures (spec §4.6); exercising the
// exponential delay itself is pin.Backoff's own concern.
func TestWrongPinDoesNotUnlock(t *testing.T) {
	d, ch, _ := newTestDevice(t, fsm.Application)

	send(d, message.TypeLoadDevice, encodeLoadDevice(testMnemonic, "1234", "", false))
	mustRecv(t, ch, time.Second)

	path := []uint32{44 | hardened, 0 | hardened, 0 | hardened, 0, 0}
	send(d, message.TypeGetAddress, encodeGetAddress(path, "Bitcoin", false))

	req := mustRecv(t, ch, time.Second)
	if req.typ != message.TypePinMatrixRequest {
		t.Fatalf("GetAddress with a PIN set = %v, want PinMatrixRequest", req.typ)
	}

	for i := 0; i < 2; i++ {
		// "1111" translates to four copies of a single matrix digit; the
		// stored PIN "1234" has four distinct digits, so this can never
		// be a correct guess regardless of the matrix's random layout.
		send(d, message.TypePinMatrixAck, encodePinMatrixAck("1111"))
		m := mustRecv(t, ch, time.Second)
		if m.typ != message.TypePinMatrixRequest {
			t.Fatalf("wrong PIN attempt %d reply = %v, want a fresh PinMatrixRequest", i, m.typ)
		}
	}

	d.mu.Lock()
	unlocked := d.pinUnlocked
	d.mu.Unlock()
	if unlocked {
		t.Fatal("session unlocked after only wrong PIN attempts")
	}
}

// TestCancelIsIdempotent covers spec §4.2's Cancel idempotence: Cancel
// with nothing in flight still answers Failure{ActionCancelled} and
// leaves no session state behind.
func TestCancelIsIdempotent(t *testing.T) {
	d, ch, _ := newTestDevice(t, fsm.Application)

	send(d, message.TypeCancel, (&message.Cancel{}).Encode())
	m := mustRecv(t, ch, time.Second)
	if m.typ != message.TypeFailure {
		t.Fatalf("Cancel reply = %v, want Failure", m.typ)
	}

	send(d, message.TypeCancel, (&message.Cancel{}).Encode())
	m = mustRecv(t, ch, time.Second)
	if m.typ != message.TypeFailure {
		t.Fatalf("second Cancel reply = %v, want Failure", m.typ)
	}
}

// TestBootloaderRejectsApplicationTypes confirms fsm.ApplicationExcludedTypes'
// mirror image: a device booted into Bootloader mode refuses ordinary
// wallet operations (spec §4.2).
func TestBootloaderRejectsApplicationTypes(t *testing.T) {
	d, ch, _ := newTestDevice(t, fsm.Bootloader)

	send(d, message.TypeGetAddress, encodeGetAddress(nil, "Bitcoin", false))

	m := mustRecv(t, ch, time.Second)
	if m.typ != message.TypeFailure {
		t.Fatalf("GetAddress in bootloader mode = %v, want Failure", m.typ)
	}
}

