// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/extension"
)

// zipBytes builds an in-memory zip from name→content pairs.
func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func crx3Bytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	header := []byte("fake-proto-header")
	var buf bytes.Buffer
	buf.WriteString("Cr24")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	buf.Write(header)
	buf.Write(payload)
	return buf.Bytes()
}

func crx2Bytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	key := []byte("pubkey")
	sig := []byte("signature")
	var buf bytes.Buffer
	buf.WriteString("Cr24")
	binary.Write(&buf, binary.LittleEndian, uint32(2))
	binary.Write(&buf, binary.LittleEndian, uint32(len(key)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(sig)))
	buf.Write(key)
	buf.Write(sig)
	buf.Write(payload)
	return buf.Bytes()
}

func TestStripCRXHeader(t *testing.T) {
	t.Parallel()

	payload := zipBytes(t, map[string]string{"manifest.json": "{}"})

	got, err := extension.StripCRXHeader(crx3Bytes(t, payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	got, err = extension.StripCRXHeader(crx2Bytes(t, payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Plain zip passes through untouched.
	got, err = extension.StripCRXHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStripCRXHeaderRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := extension.StripCRXHeader([]byte("Cr24\x07\x00\x00\x00rest"))
	assert.Error(t, err, "unsupported version")

	truncated := crx3Bytes(t, nil)[:10]
	_, err = extension.StripCRXHeader(truncated)
	assert.Error(t, err)
}

func TestUnzip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := zipBytes(t, map[string]string{
		"manifest.json": `{"name":"x"}`,
		"assets/a.js":   "console.log(1)",
	})
	require.NoError(t, extension.Unzip(data, dir, 1<<20))

	body, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, string(body))

	body, err = os.ReadFile(filepath.Join(dir, "assets", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(body))
}

func TestUnzipRejectsTraversal(t *testing.T) {
	t.Parallel()

	data := zipBytes(t, map[string]string{"../escape.txt": "bad"})
	err := extension.Unzip(data, t.TempDir(), 1<<20)
	assert.Error(t, err)
}

func TestUnzipEnforcesSizeCap(t *testing.T) {
	t.Parallel()

	big := make([]byte, 4096)
	data := zipBytes(t, map[string]string{"big.bin": string(big)})
	err := extension.Unzip(data, t.TempDir(), 1024)
	assert.Error(t, err)
}
