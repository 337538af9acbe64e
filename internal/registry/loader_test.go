// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driver.so")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestCheckFileSanityTooSmall(t *testing.T) {
	path := writeFile(t, 10)
	err := CheckFileSanity(path)
	require.ErrorIs(t, err, ErrLibraryTooSmall)
}

func TestCheckFileSanityOK(t *testing.T) {
	path := writeFile(t, 2048)
	require.NoError(t, CheckFileSanity(path))
}

func TestCheckFileSanityWorldWritable(t *testing.T) {
	path := writeFile(t, 2048)
	require.NoError(t, os.Chmod(path, 0o666))
	err := CheckFileSanity(path)
	require.ErrorIs(t, err, ErrWorldWritable)
}

func TestVerifySignatureDisabledByDefault(t *testing.T) {
	path := writeFile(t, 2048)
	require.NoError(t, VerifySignature(path, []byte("meta"), []byte("bogus"), nil))
}

func TestVerifySignatureValid(t *testing.T) {
	path := writeFile(t, 2048)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(contents)
	metadata := []byte("name=modbus;version=1.0.0")
	signed := append(append([]byte{}, metadata...), sum[:]...)
	sig := ed25519.Sign(priv, signed)

	require.NoError(t, VerifySignature(path, metadata, sig, TrustedKeys{pub}))
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	path := writeFile(t, 2048)
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(contents)
	metadata := []byte("name=modbus;version=1.0.0")
	signed := append(append([]byte{}, metadata...), sum[:]...)
	sig := ed25519.Sign(priv, signed)

	err = VerifySignature(path, metadata, sig, TrustedKeys{otherPub})
	require.ErrorIs(t, err, ErrBadSignature)
}
