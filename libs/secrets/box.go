// Package secrets seals per-studio credentials (SMTP passwords, calendar
// service-account JSON) before they are written to the database.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

var ErrUnsealable = errors.New("secret cannot be opened")

// Box seals and opens values with a 32-byte key. A nil *Box passes values
// through untouched, which is what local development runs with.
type Box struct {
	key [32]byte
}

func NewBox(hexKey string) (*Box, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode secrets key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secrets key must be 32 bytes, got %d", len(raw))
	}
	var b Box
	copy(b.key[:], raw)
	return &b, nil
}

func (b *Box) Seal(plain string) (string, error) {
	if b == nil || plain == "" {
		return plain, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is so
// rows written before a key was configured keep working.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if b == nil {
		return "", ErrUnsealable
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", ErrUnsealable
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrUnsealable
	}
	return string(plain), nil
}
