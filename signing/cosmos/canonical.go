// Canonical Cosmos SDK sign-doc construction
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cosmos

import (
	"fmt"
	"strconv"
)

// The Cosmos SDK StdSignDoc is signed as the compact JSON object with its
// top-level keys in alphabetical order:
//
//	{"account_number":"N","chain_id":"...","fee":{...},"memo":"...","msgs":[...],"sequence":"N"}
//
// msgs is itself an array of already-canonical per-message JSON objects
// supplied by the host one at a time (spec §4.8: "does not hold the full
// transaction in memory"), so the device only ever needs the prefix up to
// the opening '[' and the suffix starting at the closing ']'.

func jsonString(s string) string {
	buf := make([]byte, 0, len(s)+2)
	buf = append(buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		default:
			buf = append(buf, string(r)...)
		}
	}
	buf = append(buf, '"')
	return string(buf)
}

// signDocPrefix returns the sign-doc bytes up to and including the msgs
// array's opening bracket.
func signDocPrefix(accountNumber uint64, chainID string, feeAmount uint64, feeDenom, memo string) string {
	fee := fmt.Sprintf(`{"amount":[{"amount":"%d","denom":%s}],"gas":"0"}`,
		feeAmount, jsonString(feeDenom))

	return fmt.Sprintf(`{"account_number":"%s","chain_id":%s,"fee":%s,"memo":%s,"msgs":[`,
		strconv.FormatUint(accountNumber, 10), jsonString(chainID), fee, jsonString(memo))
}

// signDocSuffix closes the msgs array and appends the sequence field.
func signDocSuffix(sequence uint64) string {
	return fmt.Sprintf(`],"sequence":"%d"}`, sequence)
}
