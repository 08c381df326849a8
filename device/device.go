// Device wiring: transport, dispatch, storage, session and signing engines
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package device assembles the wallet core's single-threaded main loop
// (spec §5) out of the narrow packages built around it: transport frames
// feed fsm's dispatcher, whose handlers touch storage, session, pin,
// hdwallet, the three signing/* engines, firmware and recovery. It is
// grounded on cmd/tamago/main.go's flat wiring style — one constructor
// assembling concrete collaborators, one blocking run loop — generalized
// from a single hardcoded board to the board.* interfaces so the same
// Device runs against real silicon or board/simulator.
package device

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/btcsuite/btcutil/hdkeychain"

	"github.com/usbarmory/walletfw/board"
	"github.com/usbarmory/walletfw/confirm"
	"github.com/usbarmory/walletfw/firmware"
	"github.com/usbarmory/walletfw/fsm"
	"github.com/usbarmory/walletfw/hdwallet"
	"github.com/usbarmory/walletfw/message"
	"github.com/usbarmory/walletfw/pin"
	"github.com/usbarmory/walletfw/recovery"
	"github.com/usbarmory/walletfw/session"
	"github.com/usbarmory/walletfw/signing/bitcoin"
	"github.com/usbarmory/walletfw/signing/cosmos"
	"github.com/usbarmory/walletfw/signing/ethereum"
	"github.com/usbarmory/walletfw/storage"
	"github.com/usbarmory/walletfw/transport"
)

// Config collects the external hardware collaborators (spec §1's
// boundary) and the device identity fields of spec §8 scenario S1.
type Config struct {
	Flash    board.Flash
	Display  board.Display
	Button   board.Button
	Timer    board.Timer
	Endpoint board.Endpoint

	Store *storage.Store

	// StartMode selects the initial dispatch table; production devices
	// boot into fsm.Bootloader, a simulator driving application-only
	// tests may start directly in fsm.Application.
	StartMode fsm.Mode

	Vendor       string
	MajorVersion uint32
	MinorVersion uint32
	PatchVersion uint32

	Logger *log.Logger
}

// Device is the wallet core. All of its exported surface is Run; the
// handler methods are unexported and reached only through the
// fsm.Dispatcher built in New.
type Device struct {
	cfg Config

	flash    board.Flash
	display  board.Display
	button   board.Button
	timer    board.Timer
	endpoint board.Endpoint

	store   *storage.Store
	cache   *session.Cache
	backoff *pin.Backoff

	logger *log.Logger

	dispatcher *fsm.Dispatcher
	framer     *transport.Framer

	// writeMu serializes Endpoint.Write across the frame-pump goroutine
	// and every async-confirm goroutine spawned by a handler (spec §5:
	// the transport itself is single-threaded, but replies to
	// out-of-band confirmations arrive from their own goroutine).
	writeMu sync.Mutex

	// mu guards every field below it: the PIN/passphrase unlock gate and
	// the at-most-one-active-session-per-category state of spec §9's
	// Design Notes.
	mu            sync.Mutex
	pinUnlocked   bool
	pendingMatrix *pin.Matrix
	pendingUnlock func() (message.Type, []byte)
	confirmEvents chan confirm.Event

	txSession    *bitcoin.Session
	ethSession   *ethereum.Session
	cosSession   *cosmos.Session
	wordSession  *recovery.WordSession
	resetSession *recovery.ResetSession

	// pendingReset carries the ResetDevice request's label/passphrase
	// policy across to EntropyAck's commit, since recovery.ResetSession
	// itself only tracks entropy (spec §4.6.1).
	pendingResetLabel      string
	pendingResetPassphrase bool

	fwEngine   *firmware.Engine
	fwOnce     sync.Once
	fwStarted  bool
	fwSegments chan fwSegment
}

type fwSegment struct {
	data  []byte
	total uint32
}

// New assembles a Device from cfg. Vendor defaults to "keepkey.com" (spec
// §8 scenario S1) when unset.
func New(cfg Config) (*Device, error) {
	if cfg.Flash == nil || cfg.Display == nil || cfg.Button == nil || cfg.Timer == nil || cfg.Endpoint == nil {
		return nil, fmt.Errorf("device: all board collaborators are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("device: a storage.Store is required")
	}
	if cfg.Vendor == "" {
		cfg.Vendor = "keepkey.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "walletfw/device: ", log.LstdFlags)
	}

	d := &Device{
		cfg:        cfg,
		flash:      cfg.Flash,
		display:    cfg.Display,
		button:     cfg.Button,
		timer:      cfg.Timer,
		endpoint:   cfg.Endpoint,
		store:      cfg.Store,
		cache:      &session.Cache{},
		backoff:    pin.NewBackoff(pin.DefaultCap),
		logger:     cfg.Logger,
		fwSegments: make(chan fwSegment, 64),
	}

	d.fwEngine = firmware.New(cfg.Flash, cfg.Store, d.confirmFirmware)

	bootTable, appTable := d.buildTables()
	d.dispatcher = fsm.NewDispatcher(cfg.StartMode, bootTable, appTable, d.emit)
	d.dispatcher.OnInitialize(d.onInitialize)
	d.dispatcher.OnCancel(d.onCancel)
	d.framer = transport.NewFramer(d.dispatcher)

	return d, nil
}

// Run pumps frames from the endpoint into the framer until ctx is
// cancelled or the endpoint returns an error (spec §5's main loop).
func (d *Device) Run(ctx context.Context) error {
	buf := make([]byte, transport.FrameSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.endpoint.Read(buf)
		if err != nil {
			return fmt.Errorf("device: read endpoint: %w", err)
		}
		if n == 0 {
			continue
		}

		d.framer.Input(buf[:n])
	}
}

// emit encodes and writes one reply, serialized against concurrent
// writers (the frame pump's own synchronous replies and any async-confirm
// goroutine's later Emit).
func (d *Device) emit(t message.Type, payload []byte) {
	frames := transport.Output(t, payload)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	for _, f := range frames {
		if _, err := d.endpoint.Write(f); err != nil {
			d.logger.Printf("write %s: %v", t, err)
			return
		}
	}
}

// async runs fn on its own goroutine and emits its result through the
// dispatcher once it completes, returning the zero reply type so the
// calling Handler sends nothing synchronously (fsm's "no synchronous
// reply" sentinel). Every handler that blocks on confirm.Run must be
// wrapped this way; the frame pump itself may never block.
func (d *Device) async(fn func() (message.Type, []byte)) (message.Type, []byte) {
	go func() {
		t, p := fn()
		if t != 0 {
			d.dispatcher.Emit(t, p)
		}
	}()
	return 0, nil
}

// confirmPrompt shows prompt and blocks on the button-hold protocol of
// spec §4.3. abandoned is true only when a fresh Initialize interrupted
// the wait; the caller must send no further reply in that case, since
// Initialize's own Features reply has already superseded it.
func (d *Device) confirmPrompt(bt message.ButtonRequestType, prompt string) (confirmed, abandoned bool, err error) {
	d.display.ShowText(prompt)

	events := make(chan confirm.Event, 1)
	d.mu.Lock()
	d.confirmEvents = events
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.confirmEvents = nil
		d.mu.Unlock()
	}()

	m := confirm.NewMachine(confirm.HoldDuration)
	confirmed, reset, err := confirm.Run(m, d.button, events, func() error {
		d.dispatcher.Emit(message.TypeButtonRequest, (&message.ButtonRequest{Type: bt}).Encode())
		return nil
	})
	if err != nil {
		return false, false, err
	}
	if reset {
		return false, true, nil
	}
	return confirmed, false, nil
}

// confirmFirmware satisfies firmware.Engine's confirm callback. It is
// safe to block here: Engine.Segment (and the finish() call within it)
// only ever runs on the dedicated firmware-upload worker goroutine
// started by handleFirmwareErase, never on the frame pump.
func (d *Device) confirmFirmware(prompt string) (bool, error) {
	confirmed, abandoned, err := d.confirmPrompt(message.ButtonRequestFirmwareCheck, prompt)
	if err != nil {
		return false, err
	}
	if abandoned {
		return false, fmt.Errorf("firmware: upload abandoned by a host Initialize")
	}
	return confirmed, nil
}

// requireUnlocked gates cont behind PIN and passphrase entry (spec
// §4.6/§4.5): if the stored record carries a PIN and the session has not
// unlocked it yet, a PinMatrixRequest is returned and cont is stashed to
// resume from PinMatrixAck; the same for a not-yet-cached passphrase.
// Otherwise cont runs immediately.
func (d *Device) requireUnlocked(cont func() (message.Type, []byte)) (message.Type, []byte) {
	rec := d.store.Shadow()

	d.mu.Lock()
	unlocked := d.pinUnlocked
	d.mu.Unlock()

	if rec.HasPin != 0 && !unlocked {
		matrix, err := pin.NewMatrix()
		if err != nil {
			return message.TypeFailure, (&message.Failure{Code: message.Other, Message: err.Error()}).Encode()
		}
		d.mu.Lock()
		d.pendingMatrix = matrix
		d.pendingUnlock = cont
		d.mu.Unlock()
		return message.TypePinMatrixRequest, (&message.PinMatrixRequest{}).Encode()
	}

	if rec.PassphraseProtection != 0 && !d.cache.PassphraseCached() {
		d.mu.Lock()
		d.pendingUnlock = cont
		d.mu.Unlock()
		return message.TypePassphraseRequest, (&message.PassphraseRequest{}).Encode()
	}

	return cont()
}

// root returns the session HD root, deriving and caching it on first use
// (spec §4.5) from whichever of {node, mnemonic} the stored record holds.
func (d *Device) root() (*hdkeychain.ExtendedKey, error) {
	if d.cache.HasRoot() {
		return d.cache.Root(), nil
	}

	rec := d.store.Shadow()

	var root *hdkeychain.ExtendedKey
	var err error

	switch {
	case rec.HasNode != 0:
		root, err = hdwallet.RootFromNode(rec.Node)
	case rec.HasMnemonic != 0:
		root, err = hdwallet.RootFromMnemonic(rec.Mnemonic_(), d.cache.Passphrase())
	default:
		return nil, fmt.Errorf("device: not initialized")
	}
	if err != nil {
		return nil, err
	}

	d.cache.SetRoot(root)
	return root, nil
}

// clearSessions drops every in-progress interactive session (spec §4.2:
// Initialize and Cancel both abandon whatever is in flight). It is
// idempotent.
func (d *Device) clearSessions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txSession = nil
	d.ethSession = nil
	d.cosSession = nil
	d.wordSession = nil
	d.resetSession = nil
	d.pendingResetLabel = ""
	d.pendingResetPassphrase = false
}

// onCancel is the dispatcher's OnCancel callback: idempotent per spec
// §4.2, forwarding into an active confirm wait if one exists before
// dropping all session state.
func (d *Device) onCancel() {
	d.mu.Lock()
	events := d.confirmEvents
	d.mu.Unlock()

	if events != nil {
		select {
		case events <- confirm.EventCancel:
		default:
		}
	}

	d.clearSessions()
}

// onInitialize is the dispatcher's OnInitialize callback (spec §4.2): it
// resets the session to a known state, forwarding into an active confirm
// wait so a blocked goroutine unwinds without emitting a stale reply
// (spec §8 scenario S5).
func (d *Device) onInitialize() {
	d.mu.Lock()
	events := d.confirmEvents
	d.mu.Unlock()

	if events != nil {
		select {
		case events <- confirm.EventInitialize:
		default:
		}
	}

	d.clearSessions()
	d.cache.Clear()

	d.mu.Lock()
	d.pinUnlocked = false
	d.pendingMatrix = nil
	d.pendingUnlock = nil
	d.mu.Unlock()
}
