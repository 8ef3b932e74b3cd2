// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const pemBlockPrivateKey = "PRIVATE KEY"

// Identity is this device's signing key. The gateway pairs devices by
// DeviceID, the hex SHA-256 of the raw public key.
type Identity struct {
	DeviceID   string
	privateKey ed25519.PrivateKey
}

// GenerateIdentity creates a new random identity.
func GenerateIdentity() (*Identity, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: generating device key: %w", err)
	}
	return newIdentity(privateKey), nil
}

// ParseIdentity reads a PKCS#8 PEM-encoded Ed25519 private key.
func ParseIdentity(data []byte) (*Identity, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("gateway: device key is not PEM encoded")
	}
	if block.Type != pemBlockPrivateKey {
		return nil, fmt.Errorf("gateway: device key PEM block is %q, want %q", block.Type, pemBlockPrivateKey)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("gateway: parsing device key: %w", err)
	}
	privateKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("gateway: device key is %T, want Ed25519", key)
	}
	return newIdentity(privateKey), nil
}

// LoadOrCreateIdentity reads the key at path, creating it (mode 0600)
// if the file does not exist.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ParseIdentity(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("gateway: reading device key: %w", err)
	}

	identity, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	encoded, err := identity.MarshalPEM()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("gateway: creating device key directory: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, fmt.Errorf("gateway: writing device key: %w", err)
	}
	return identity, nil
}

func newIdentity(privateKey ed25519.PrivateKey) *Identity {
	publicKey := privateKey.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(publicKey)
	return &Identity{DeviceID: hex.EncodeToString(sum[:]), privateKey: privateKey}
}

// MarshalPEM encodes the private key as PKCS#8 PEM.
func (identity *Identity) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(identity.privateKey)
	if err != nil {
		return nil, fmt.Errorf("gateway: encoding device key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockPrivateKey, Bytes: der}), nil
}

// PublicKey returns the raw public key, URL-safe base64 without
// padding.
func (identity *Identity) PublicKey() string {
	return base64.RawURLEncoding.EncodeToString(identity.privateKey.Public().(ed25519.PublicKey))
}

// Sign signs payload and returns the signature, URL-safe base64 without
// padding.
func (identity *Identity) Sign(payload string) string {
	return base64.RawURLEncoding.EncodeToString(ed25519.Sign(identity.privateKey, []byte(payload)))
}

// SignaturePayload is the string a device signs in the connect
// handshake.
func SignaturePayload(deviceID, clientID, clientMode, role string, scopes []string, signedAtMs int64, token, nonce string) string {
	return strings.Join([]string{
		"v2",
		deviceID,
		clientID,
		clientMode,
		role,
		strings.Join(scopes, ","),
		strconv.FormatInt(signedAtMs, 10),
		token,
		nonce,
	}, "|")
}
