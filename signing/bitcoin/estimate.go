// Pre-flight transaction size estimation
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bitcoin

// Per-input/per-output/base byte weights for a legacy P2PKH-shaped
// transaction: ~10 bytes of fixed overhead (version, counts, locktime),
// ~148 bytes per signed input, ~34 bytes per output. This is the
// supplemented EstimateTxSize operation (see SPEC_FULL.md): a cheap
// pre-flight check the host can run before committing to the full
// interactive SignTx engine, so it does not derive any keys or touch
// the host-supplied input/output detail at all.
const (
	baseOverhead   = 10
	perInputBytes  = 148
	perOutputBytes = 34
)

// EstimateVirtualSize returns the estimated serialized size, in bytes, of
// a transaction with the given input/output counts.
func EstimateVirtualSize(inputsCount, outputsCount uint32) uint32 {
	return baseOverhead + perInputBytes*inputsCount + perOutputBytes*outputsCount
}
