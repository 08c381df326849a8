// Hosted device simulator
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command walletfw-sim runs the wallet core over board/simulator,
// exposing the HID transport on a Unix domain socket instead of real USB
// hardware, so host-side tooling can exercise the full protocol without
// a device attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/usbarmory/walletfw/board/simulator"
	"github.com/usbarmory/walletfw/device"
	"github.com/usbarmory/walletfw/fsm"
	"github.com/usbarmory/walletfw/storage"
	"github.com/usbarmory/walletfw/transport"
)

var (
	socketPath = flag.String("socket", "walletfw.sock", "HID transport Unix domain socket path")
	stateDir   = flag.String("state", "walletfw-state", "directory holding the three storage slot files")
	flashSize  = flag.Int("flash-size", 1<<20, "simulated application flash region size, in bytes")
	bootloader = flag.Bool("bootloader", false, "start in bootloader mode instead of application mode")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("walletfw-sim: %v", err)
	}
}

func run() error {
	if err := os.MkdirAll(*stateDir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var slots [storage.SlotCount]string
	for i := range slots {
		slots[i] = filepath.Join(*stateDir, fmt.Sprintf("slot%c", 'a'+i))
	}

	logger := log.New(os.Stderr, "walletfw-sim: ", log.LstdFlags)

	store, err := storage.Open(slots, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if err := os.RemoveAll(*socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer listener.Close()

	mode := fsm.Application
	if *bootloader {
		mode = fsm.Bootloader
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Printf("listening on %s (flash %d bytes, mode %v)", *socketPath, *flashSize, mode)

	for {
		conn, err := acceptOrDone(ctx, listener)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if conn == nil {
			return nil
		}

		d, err := device.New(device.Config{
			Flash:     simulator.NewFlash(*flashSize),
			Display:   simulator.NewDisplay(os.Stdout),
			Button:    &simulator.Button{},
			Timer:     simulator.Timer{},
			Endpoint:  &connEndpoint{conn: conn},
			Store:     store,
			StartMode: mode,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("new device: %w", err)
		}

		log.Printf("accepted connection from %s", conn.RemoteAddr())

		go func() {
			if err := d.Run(ctx); err != nil {
				log.Printf("session ended: %v", err)
			}
			conn.Close()
		}()
	}
}

// acceptOrDone returns (nil, nil) once ctx is cancelled, unblocking
// Accept by closing the listener from a side goroutine.
func acceptOrDone(ctx context.Context, listener net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		conn, err := listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		listener.Close()
		return nil, nil
	case r := <-ch:
		return r.conn, r.err
	}
}

// connEndpoint adapts a stream connection to board.Endpoint by reading
// and writing exactly transport.FrameSize bytes per call, matching the
// fixed-size HID report contract real USB hardware provides.
type connEndpoint struct {
	conn net.Conn
}

func (e *connEndpoint) Read(report []byte) (int, error) {
	return readFull(e.conn, report[:transport.FrameSize])
}

func (e *connEndpoint) Write(report []byte) (int, error) {
	return e.conn.Write(report)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
