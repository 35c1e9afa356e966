// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// crxMagic is the 4-byte magic at the start of every CRX package.
var crxMagic = []byte("Cr24")

// StripCRXHeader returns the embedded zip payload of a CRX2 or CRX3
// package. Plain zip input is returned unchanged.
func StripCRXHeader(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, crxMagic) {
		// Not a CRX; assume it's already a zip.
		return data, nil
	}
	if len(data) < 12 {
		return nil, pskyerr.New(pskyerr.CodeExtensionInstallInvalid, "CRX header truncated")
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	switch version {
	case 2:
		// CRX2: magic, version, pubkey length, signature length, then both blobs.
		if len(data) < 16 {
			return nil, pskyerr.New(pskyerr.CodeExtensionInstallInvalid, "CRX2 header truncated")
		}
		keyLen := binary.LittleEndian.Uint32(data[8:12])
		sigLen := binary.LittleEndian.Uint32(data[12:16])
		offset := 16 + int64(keyLen) + int64(sigLen)
		if offset <= 16 || offset > int64(len(data)) {
			return nil, pskyerr.New(pskyerr.CodeExtensionInstallInvalid, "CRX2 header lengths out of range")
		}
		return data[offset:], nil
	case 3:
		// CRX3: magic, version, header length, protobuf header, then the zip.
		headerLen := binary.LittleEndian.Uint32(data[8:12])
		offset := 12 + int64(headerLen)
		if offset <= 12 || offset > int64(len(data)) {
			return nil, pskyerr.New(pskyerr.CodeExtensionInstallInvalid, "CRX3 header length out of range")
		}
		return data[offset:], nil
	default:
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid, "unsupported CRX version %d", version)
	}
}

// Unzip extracts a zip payload into dir. Entries escaping dir (zip-slip)
// and symlinks are rejected. maxBytes bounds the total decompressed size.
func Unzip(data []byte, dir string, maxBytes int64) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallInvalid, "opening zip payload")
	}

	var written int64
	for _, f := range reader.File {
		target, err := sanitizeEntryPath(dir, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		if mode&os.ModeSymlink != 0 {
			return pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid, "zip entry %q is a symlink", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "creating directory", pskyerr.Field("path", target))
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "creating parent directory", pskyerr.Field("path", target))
		}

		src, err := f.Open()
		if err != nil {
			return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallInvalid, "opening zip entry", pskyerr.Field("entry", f.Name))
		}

		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			src.Close()
			return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "creating file", pskyerr.Field("path", target))
		}

		n, err := io.Copy(dst, io.LimitReader(src, maxBytes-written+1))
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "extracting zip entry", pskyerr.Field("entry", f.Name))
		}
		written += n
		if written > maxBytes {
			return pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid,
				"zip payload decompresses past %d bytes", maxBytes)
		}
	}
	return nil
}

// sanitizeEntryPath resolves a zip entry name under dir, rejecting absolute
// paths and traversal.
func sanitizeEntryPath(dir, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid, "unsafe zip entry path %q", name)
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid, "zip entry %q escapes extraction root", name)
	}
	return target, nil
}
