// Three-slot atomic commit protocol
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// SlotCount is the number of interchangeable candidate sectors (spec §3's
// storage-A/B/C).
const SlotCount = 3

// ErrNewerVersion is returned by Open when the winning slot's version
// exceeds CurrentVersion (spec §4.4: "the field unit must not downgrade
// silently").
var ErrNewerVersion = errors.New("storage: record version newer than supported")

// ProgressFunc is invoked during long writes so the UI can animate (spec
// §4.4).
type ProgressFunc func(percent int)

// Store owns the three candidate flash-backed slots and the in-memory
// shadow record used for staged mutations (spec §4.4's "shadow copy").
// Each slot is backed by a real file, mmap'd with golang.org/x/sys/unix so
// the winning slot is genuinely memory-mapped as spec §4.4 describes,
// rather than merely read into a byte slice.
type Store struct {
	logger *log.Logger
	paths  [SlotCount]string
	files  [SlotCount]*os.File
	maps   [SlotCount][]byte

	winner int // index into maps, or -1 if uninitialized
	shadow Record

	onProgress ProgressFunc
}

// Open scans the three slot files (created/truncated to RecordSize if
// absent), picks the winner by highest valid version, runs migration if
// needed, and erases any stale valid slots opportunistically (spec §4.4).
func Open(paths [SlotCount]string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "walletfw/storage: ", log.LstdFlags)
	}

	s := &Store{logger: logger, paths: paths, winner: -1}

	for i, p := range paths {
		f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, fmt.Errorf("storage: open slot %d: %w", i, err)
		}
		if err := f.Truncate(int64(RecordSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("storage: truncate slot %d: %w", i, err)
		}

		m, err := unix.Mmap(int(f.Fd()), 0, RecordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("storage: mmap slot %d: %w", i, err)
		}

		s.files[i] = f
		s.maps[i] = m
	}

	if err := s.scan(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// scan finds the highest-version valid slot, adopts it as the shadow, and
// erases other valid-but-stale slots.
func (s *Store) scan() error {
	bestVersion := int64(-1)
	best := -1

	for i, m := range s.maps {
		rec, err := UnmarshalRecord(m)
		if err != nil {
			continue
		}
		if !rec.ValidMagic() {
			continue
		}
		if int64(rec.Version) > bestVersion {
			bestVersion = int64(rec.Version)
			best = i
		}
	}

	if best < 0 {
		s.winner = -1
		s.shadow = Record{}
		return nil
	}

	rec, err := UnmarshalRecord(s.maps[best])
	if err != nil {
		return err
	}

	if rec.Version > CurrentVersion {
		return ErrNewerVersion
	}
	if rec.Version < CurrentVersion {
		s.migrate(rec)
	}

	s.winner = best
	s.shadow = *rec

	for i, m := range s.maps {
		if i == best {
			continue
		}
		other, err := UnmarshalRecord(m)
		if err == nil && other.ValidMagic() {
			s.eraseSlot(i)
		}
	}

	return nil
}

// migrate runs the version migration chain up to CurrentVersion. There is
// only one format version today; this hook exists so a future bump has a
// single place to extend.
func (s *Store) migrate(rec *Record) {
	rec.Version = CurrentVersion
}

// Shadow returns a copy of the in-memory shadow record for read access
// (spec §4.4 "typed getters that copy fields into caller buffers").
func (s *Store) Shadow() Record {
	return s.shadow
}

// Mutate applies fn to a copy of the shadow record and, if fn returns nil,
// installs the result as the new shadow (not yet committed to flash).
func (s *Store) Mutate(fn func(*Record) error) error {
	next := s.shadow
	if err := fn(&next); err != nil {
		return err
	}
	s.shadow = next
	return nil
}

// SetProgress registers a callback invoked with 0-100 during Commit's
// flash writes.
func (s *Store) SetProgress(fn ProgressFunc) {
	s.onProgress = fn
}

func (s *Store) progress(pct int) {
	if s.onProgress != nil {
		s.onProgress(pct)
	}
}

// nextSlot returns the rotation target: the slot after the current winner,
// cycling through all SlotCount slots (slot 0 when there is no winner).
func (s *Store) nextSlot() int {
	return (s.winner + 1) % SlotCount
}

// eraseSlot fills a slot with the flash-erased pattern (0xFF) and syncs.
func (s *Store) eraseSlot(i int) {
	m := s.maps[i]
	for j := range m {
		m[j] = 0xff
	}
	_ = unix.Msync(m, unix.MS_SYNC)
}

// Commit writes the shadow record to the next slot in rotation order,
// with the magic literal written last so a crash mid-commit leaves no
// half-valid slot (spec §4.4 steps 1-4). It then erases the previous
// winner.
func (s *Store) Commit() error {
	if s.shadow.UUID == ([12]byte{}) {
		var raw [12]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return fmt.Errorf("storage: generate uuid: %w", err)
		}
		s.shadow.UUID = raw
		hexStr := hex.EncodeToString(raw[:])
		var uuidStr [25]byte
		copy(uuidStr[:], hexStr) // 24 hex chars + trailing NUL byte
		s.shadow.UUIDStr = uuidStr
	}

	s.shadow.Version = CurrentVersion

	target := s.nextSlot()
	previous := s.winner

	s.progress(0)
	s.eraseSlot(target)
	s.progress(25)

	data, err := s.shadow.MarshalBinary()
	if err != nil {
		return err
	}

	m := s.maps[target]

	// Program everything except the magic first.
	copy(m[4:], data[4:])
	if err := unix.Msync(m, unix.MS_SYNC); err != nil {
		return fmt.Errorf("storage: sync slot %d payload: %w", target, err)
	}
	s.progress(75)

	// Commit token: write magic last.
	copy(m[:4], data[:4])
	if err := unix.Msync(m, unix.MS_SYNC); err != nil {
		return fmt.Errorf("storage: sync slot %d magic: %w", target, err)
	}
	s.progress(90)

	s.winner = target

	if previous >= 0 && previous != target {
		s.eraseSlot(previous)
	}
	s.progress(100)

	return nil
}

// Wipe erases all candidate slots and drops the in-memory shadow (spec
// §4.4). A fresh UUID is generated on the next Commit.
func (s *Store) Wipe() error {
	for i := range s.maps {
		s.eraseSlot(i)
	}
	s.winner = -1
	s.shadow = Record{}
	return nil
}

// Close unmaps and closes all slot files.
func (s *Store) Close() error {
	var firstErr error
	for i := range s.maps {
		if s.maps[i] != nil {
			if err := unix.Munmap(s.maps[i]); err != nil && firstErr == nil {
				firstErr = err
			}
			s.maps[i] = nil
		}
		if s.files[i] != nil {
			if err := s.files[i].Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
