// Minimal RLP encoding for the signing commitment
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ethereum

// RLP (Recursive Length Prefix) is Ethereum's canonical transaction
// encoding. Only byte-string items and lists of byte strings are needed
// here (spec §4.8: "Keccak-256 over RLP-encoded fields").

func rlpEncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		return append([]byte{byte(0x80 + len(b))}, b...)
	}
	lenBytes := minimalBigEndian(uint64(len(b)))
	prefix := append([]byte{byte(0xb7 + len(lenBytes))}, lenBytes...)
	return append(prefix, b...)
}

func rlpEncodeList(items ...[]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	if len(payload) < 56 {
		return append([]byte{byte(0xc0 + len(payload))}, payload...)
	}
	lenBytes := minimalBigEndian(uint64(len(payload)))
	prefix := append([]byte{byte(0xf7 + len(lenBytes))}, lenBytes...)
	return append(prefix, payload...)
}

func minimalBigEndian(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	n := 8
	for n > 0 {
		n--
		buf[n] = byte(v)
		v >>= 8
		if v == 0 {
			break
		}
	}
	return buf[n:]
}
