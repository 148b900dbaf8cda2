package store

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// sealMagic prefixes a sealed credential file.
var sealMagic = []byte("BXS1")

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrPassphraseRequired means the file is sealed and the store has no
// passphrase.
var ErrPassphraseRequired = errors.New("credential file is sealed, passphrase required")

func deriveKey(passphrase, salt []byte) *[keySize]byte {
	var key [keySize]byte
	copy(key[:], argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, keySize))
	return &key
}

// seal encrypts plaintext with a key derived from passphrase. Every call uses
// a fresh salt and nonce.
func seal(passphrase, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+saltSize+nonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, deriveKey(passphrase, salt)), nil
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

// unseal reverses seal. A wrong passphrase and a tampered file are
// indistinguishable and both yield ErrCorrupted.
func unseal(passphrase, data []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrPassphraseRequired
	}
	header := len(sealMagic) + saltSize + nonceSize
	if len(data) < header+secretbox.Overhead {
		return nil, fmt.Errorf("%w: sealed file truncated", ErrCorrupted)
	}

	salt := data[len(sealMagic) : len(sealMagic)+saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[len(sealMagic)+saltSize:header])

	plain, ok := secretbox.Open(nil, data[header:], &nonce, deriveKey(passphrase, salt))
	if !ok {
		return nil, fmt.Errorf("%w: cannot decrypt credential file", ErrCorrupted)
	}
	return plain, nil
}
