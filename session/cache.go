// Session-scoped HD root and passphrase cache
// https://github.com/usbarmory/walletfw
//
// Copyright (c) The WalletFW Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package session holds the process-lifetime-only derived state of spec
// §4.5: the HD root node and the passphrase. It is grounded on
// internal/rng/rng.go's small stateful-package shape, but rebuilt as a
// Device-owned value per the Design Notes rather than package globals.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/btcsuite/btcutil/hdkeychain"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/ripemd160"
)

// pbkdf2Rounds and SeedFromMnemonic's salt implement the BIP-39 seed derivation of
// spec §4.5: PBKDF2-HMAC-SHA512, 2048 rounds, salt "mnemonic"+passphrase.
const pbkdf2Rounds = 2048

// SeedFromMnemonic derives the 64-byte BIP-39 seed.
func SeedFromMnemonic(mnemonic, passphrase string) []byte {
	salt := "mnemonic" + passphrase
	return pbkdf2.Key([]byte(mnemonic), []byte(salt), pbkdf2Rounds, 64, sha512.New)
}

// LegacyEncryptedNode holds an AES-256-CBC-encrypted chain code/private
// key pair, as produced by older storage formats (spec §4.5 "legacy"
// branch).
type LegacyEncryptedNode struct {
	EncryptedChainCode  [32]byte
	EncryptedPrivateKey [32]byte
	PublicKey           [33]byte
}

// legacyKey derives the AES key for a LegacyEncryptedNode using the same
// PBKDF2-HMAC-SHA512-then-RIPEMD160 construction the original firmware
// used to key its AES-CBC storage encryption.
func legacyKey(passphrase string) []byte {
	stretched := pbkdf2.Key([]byte(passphrase), []byte("Storage Key"), pbkdf2Rounds, sha512.Size, sha512.New)
	h := ripemd160.New()
	h.Write(stretched)
	return h.Sum(nil)[:aes.BlockSize*2] // 32 bytes for AES-256
}

// DecryptLegacyNode decrypts chain_code/private_key using the
// passphrase-derived key, per spec §4.5.
func DecryptLegacyNode(n LegacyEncryptedNode, passphrase string) (chainCode, privateKey [32]byte, err error) {
	key := legacyKey(passphrase)

	block, err := aes.NewCipher(key)
	if err != nil {
		return chainCode, privateKey, fmt.Errorf("session: legacy aes cipher: %w", err)
	}

	// The original construction uses a fixed zero IV per field; this is
	// acceptable only because each field is encrypted exactly once under
	// a key unique to the device and never reused across records.
	var iv [aes.BlockSize]byte

	cc := append([]byte(nil), n.EncryptedChainCode[:]...)
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(cc, cc)
	copy(chainCode[:], cc)

	pk := append([]byte(nil), n.EncryptedPrivateKey[:]...)
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(pk, pk)
	copy(privateKey[:], pk)

	return chainCode, privateKey, nil
}

// Cache holds the session-lifetime HD root and passphrase (spec §4.5). It
// is owned by device.Device and must be cleared on ClearSession,
// Initialize, PIN failure, and wipe (spec §3 invariants).
type Cache struct {
	root           *hdkeychain.ExtendedKey
	passphrase     string
	passphraseSet  bool
}

// Clear drops both cached values.
func (c *Cache) Clear() {
	c.root = nil
	c.passphrase = ""
	c.passphraseSet = false
}

// SetPassphrase caches the host-supplied passphrase for this session.
func (c *Cache) SetPassphrase(p string) {
	c.passphrase = p
	c.passphraseSet = true
	c.root = nil // a new passphrase invalidates any derived root
}

// Passphrase returns the cached passphrase, defaulting to "" when the host
// never supplied one this session (spec §4.5).
func (c *Cache) Passphrase() string {
	return c.passphrase
}

// PassphraseCached reports whether a passphrase has been supplied this
// session, distinguishing "" (explicitly empty) from "never asked".
func (c *Cache) PassphraseCached() bool {
	return c.passphraseSet
}

// HasRoot reports whether a root is already derived for this session.
func (c *Cache) HasRoot() bool {
	return c.root != nil
}

// SetRoot installs an already-derived root (e.g. from progress-callback
// derivation in the caller).
func (c *Cache) SetRoot(root *hdkeychain.ExtendedKey) {
	c.root = root
}

// Root returns the cached root, or nil if none has been derived yet.
func (c *Cache) Root() *hdkeychain.ExtendedKey {
	return c.root
}

// CipherKeyValueKey derives a deterministic symmetric key from a node's
// private key material for the CipherKeyValue operation (supplemented
// feature, see SPEC_FULL.md): HMAC-SHA256 of message keyed by the node's
// private key. The 32-byte MAC is used whole as the AES-256 key.
func CipherKeyValueKey(message, privateKey []byte) []byte {
	mac := hmac.New(sha256.New, privateKey)
	mac.Write(message)
	return mac.Sum(nil)
}
