// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/apex/log"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations is the PBKDF2 work factor of new envelopes.
const DefaultIterations = 600_000

const (
	kdfName   = "pbkdf2-sha512"
	keyLength = 32
	saltSize  = 16
)

// ErrPassphrase is returned when an envelope does not open with the
// passphrase given.
var ErrPassphrase = errors.New("wrong passphrase or corrupted state")

// envelope is the stored form of an encrypted document.
type envelope struct {
	Meta struct {
		KDF        string `json:"kdf"`
		Salt       string `json:"salt"`
		Iterations int    `json:"iterations"`
		KeyLength  int    `json:"key_length"`
	} `json:"meta"`
	EncryptedData string `json:"encrypted_data"`
}

// Encrypted seals documents with AES-GCM under a key derived from a
// passphrase before they reach Inner. Plain documents already in Inner are
// read as they are.
type Encrypted struct {
	Inner      Backend
	Passphrase string
	Iterations int
}

func (e *Encrypted) Read(ctx context.Context) ([]byte, error) {
	data, err := e.Inner.Read(ctx)
	if err != nil || data == nil {
		return data, err
	}

	var env envelope
	if json.Unmarshal(data, &env) != nil || env.EncryptedData == "" {
		log.Debugf("%s is not encrypted", e.Inner)
		return data, nil
	}
	return open(env, e.Passphrase)
}

func (e *Encrypted) Write(ctx context.Context, data []byte) error {
	iterations := e.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	sealed, err := seal(data, e.Passphrase, iterations)
	if err != nil {
		return err
	}
	return e.Inner.Write(ctx, sealed)
}

func (e *Encrypted) String() string {
	return e.Inner.String()
}

func seal(plaintext []byte, passphrase string, iterations int) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	gcm, err := newGCM(passphrase, salt, iterations, keyLength)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	var env envelope
	env.Meta.KDF = kdfName
	env.Meta.Salt = base64.StdEncoding.EncodeToString(salt)
	env.Meta.Iterations = iterations
	env.Meta.KeyLength = keyLength
	env.EncryptedData = base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil))
	return json.Marshal(env)
}

func open(env envelope, passphrase string) ([]byte, error) {
	if env.Meta.KDF != kdfName {
		return nil, fmt.Errorf("unsupported key derivation %q", env.Meta.KDF)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Meta.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	gcm, err := newGCM(passphrase, salt, env.Meta.Iterations, env.Meta.KeyLength)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short: %w", ErrPassphrase)
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrPassphrase
	}
	return plaintext, nil
}

func newGCM(passphrase string, salt []byte, iterations, length int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, length, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
