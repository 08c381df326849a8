// In-memory/file-backed flash for tests and the hosted CLI
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package simulator stands in for real USB armory silicon the way
// board/qemu stands in for the teacher's emulated targets: board.Flash,
// board.Display, board.Button, and board.Timer implementations backed by
// a plain byte slice, stdout, a settable flag, and the system clock.
package simulator

import (
	"fmt"
	"sync"
)

// Flash is a board.Flash backed by an in-memory byte slice. A real
// device's flash driver replaces this one-for-one; nothing above
// board.Flash depends on the backing store.
type Flash struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// NewFlash returns a Flash of size bytes, initialized to the erased
// pattern (0xFF), mirroring storage.Store's erase convention.
func NewFlash(size int) *Flash {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xff
	}
	return &Flash{data: data, locked: true}
}

func (f *Flash) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = false
	return nil
}

func (f *Flash) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = true
	return nil
}

func (f *Flash) Size() int64 {
	return int64(len(f.data))
}

func (f *Flash) ReadAt(p []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset < 0 || offset > int64(len(f.data)) {
		return 0, fmt.Errorf("simulator: flash read offset %d out of range", offset)
	}
	n := copy(p, f.data[offset:])
	return n, nil
}

func (f *Flash) WriteAt(p []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.locked {
		return 0, fmt.Errorf("simulator: flash write while locked")
	}
	if offset < 0 || offset+int64(len(p)) > int64(len(f.data)) {
		return 0, fmt.Errorf("simulator: flash write [%d:%d] out of range", offset, offset+int64(len(p)))
	}
	n := copy(f.data[offset:], p)
	return n, nil
}

// Erase fills the whole region with the erased pattern, regardless of the
// lock state; only the simulator's test/CLI harness calls this directly.
func (f *Flash) Erase() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.data {
		f.data[i] = 0xff
	}
}
