// PIN fail-count exponential backoff
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pin

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCap bounds the exponent so the wait never exceeds 2^DefaultCap
// seconds, a device-defined maximum (spec §4.6).
const DefaultCap = 12 // 2^12s ≈ 68 minutes

// Backoff enforces the "no faster than 2^fails seconds, capped" gate of
// spec §4.6 between wrong PIN attempts. It is built on
// golang.org/x/time/rate: each recorded failure reconfigures a
// single-token rate.Limiter whose refill interval is the required delay,
// and immediately consumes that token so the *next* Wait call is the one
// that blocks — matching "inserts a delay before the next attempt".
type Backoff struct {
	cap     uint32
	limiter *rate.Limiter
}

// NewBackoff returns a Backoff with no pending delay.
func NewBackoff(cap uint32) *Backoff {
	return &Backoff{cap: cap}
}

// RecordFailure updates the gate after a wrong PIN entry. fails is the
// storage-committed pin_failed_attempts counter (spec §4.6: committed
// before the comparison result is reported). Below 3 consecutive
// failures there is no delay at all.
func (b *Backoff) RecordFailure(fails uint32) {
	if fails < 3 {
		b.limiter = nil
		return
	}

	exp := fails
	if exp > b.cap {
		exp = b.cap
	}

	interval := time.Duration(1) << exp * time.Second
	b.limiter = rate.NewLimiter(rate.Every(interval), 1)
	b.limiter.Allow() // consume the initial burst token
}

// Reset clears any pending delay (correct PIN entry).
func (b *Backoff) Reset() {
	b.limiter = nil
}

// Wait blocks until the backoff gate permits the next attempt, or ctx is
// done. With no pending delay it returns immediately.
func (b *Backoff) Wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// Delay reports the remaining wait duration without blocking, for UI
// display purposes.
func (b *Backoff) Delay() time.Duration {
	if b.limiter == nil {
		return 0
	}
	r := b.limiter.ReserveN(time.Now(), 0)
	defer r.Cancel()
	return r.Delay()
}
