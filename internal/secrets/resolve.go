// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI splits keyring://service/key into its parts.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", pskyerr.Errorf(pskyerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	service, key, ok := strings.Cut(path, "/")
	if !ok || service == "" || key == "" {
		return "", "", pskyerr.Errorf(pskyerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// ResolveKeyringURI resolves one keyring:// URI against store. Plain
// values pass through unchanged.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}
	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string value in v with
// the secret it names. Failures keep the URI in place and log a warning;
// the consuming component surfaces the error when the value is used.
func ResolveViperSecrets(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}
		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			slog.Warn("keyring URI left unresolved", "config_key", key, "error", err)
			continue
		}
		v.Set(key, resolved)
	}
}
