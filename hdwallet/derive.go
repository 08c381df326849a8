// BIP-32 derivation wrapper and path rule enforcement
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hdwallet

import (
	"fmt"

	"github.com/btcsuite/btcutil/hdkeychain"
)

// Hardened is the BIP-32 hardened-index offset; address_n entries already
// carry this bit set for hardened path components (spec §4.7).
const Hardened = uint32(0x80000000)

// ScriptType names the rule-table classification of spec §4.7.
type ScriptType string

const (
	ScriptLegacy        ScriptType = "P2PKH"
	ScriptMultisigP2SH  ScriptType = "P2SH-MULTISIG"
	ScriptMultisigCopay ScriptType = "P2SH-MULTISIG-COPAY"
	ScriptP2SHSegwit    ScriptType = "P2SH-SEGWIT"
	ScriptNativeSegwit  ScriptType = "BECH32"
	ScriptUnknown       ScriptType = "UNKNOWN"
)

// Derive walks root through each index of path via repeated CKD,
// returning Failure{Other} semantics as a plain error per spec §4.7 ("a
// mismatch... returns the user to home" on any step failure).
func Derive(root *hdkeychain.ExtendedKey, path []uint32) (*hdkeychain.ExtendedKey, error) {
	node := root
	for i, idx := range path {
		child, err := node.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("hdwallet: derive step %d (index %#x): %w", i, idx, err)
		}
		node = child
	}
	return node, nil
}

// PathRule captures one row of the spec §4.7 table.
type PathRule struct {
	ScriptType    ScriptType
	RequiredDepth int
	RequireSegwit bool
	RequireBech32 bool
}

var pathRules = map[uint32]PathRule{
	44 | Hardened: {ScriptLegacy, 5, false, false},
	45 | Hardened: {ScriptMultisigP2SH, 4, false, false},
	48 | Hardened: {ScriptMultisigCopay, 5, false, false},
	49 | Hardened: {ScriptP2SHSegwit, 5, true, false},
	84 | Hardened: {ScriptNativeSegwit, 5, true, true},
}

// CheckPath validates path against the spec §4.7 table for coin. It
// returns the inferred script type and whether the path is a "mismatch"
// that should be surfaced to the user as a warning rather than a hard
// failure (spec: "A mismatch warns the user but does not hard-fail; the
// user may override with explicit confirmation").
func CheckPath(coin Coin, path []uint32) (scriptType ScriptType, mismatch bool) {
	if len(path) == 0 {
		return ScriptUnknown, true
	}

	rule, ok := pathRules[path[0]]
	if !ok {
		return ScriptUnknown, true
	}

	if len(path) != rule.RequiredDepth {
		return rule.ScriptType, true
	}

	if rule.RequireSegwit && !coin.SupportsSegwit {
		return rule.ScriptType, true
	}
	if rule.RequireBech32 && !coin.SupportsBech32 {
		return rule.ScriptType, true
	}

	switch rule.ScriptType {
	case ScriptLegacy:
		coinType := path[1] &^ Hardened
		if coinType != coin.Bip44CoinType || path[1]&Hardened == 0 {
			return rule.ScriptType, true
		}
		if path[2]&Hardened == 0 {
			return rule.ScriptType, true
		}
		if path[3]&Hardened != 0 || path[4]&Hardened != 0 {
			return rule.ScriptType, true
		}
	}

	return rule.ScriptType, false
}

// IsChangePath reports whether path is derivable as a change output on the
// same account as accountPath (spec §4.8 change detection): identical
// prefix through the account level, with a change-branch index (4th
// component, 0-indexed position 3, value 1) differing only in the final
// address index.
func IsChangePath(accountPath, candidate []uint32) bool {
	if len(accountPath) < 4 || len(candidate) != len(accountPath) {
		return false
	}
	for i := 0; i < 3; i++ {
		if accountPath[i] != candidate[i] {
			return false
		}
	}
	return candidate[3] == 1
}
