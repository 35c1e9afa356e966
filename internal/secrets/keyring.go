// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// indexSuffix forms the key holding the JSON list of stored key names
// for a service. go-keyring has no native enumeration, so List reads
// this index instead.
const indexSuffix = "::keys-index"

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service over D-Bus on Linux, Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.addToIndex(service, key)
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkNames(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", pskyerr.Errorf(pskyerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}
	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return pskyerr.Errorf(pskyerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return s.removeFromIndex(service, key)
}

func (s *KeyringStore) List(service string) ([]string, error) {
	return s.loadIndex(service)
}

func checkNames(service, key string) error {
	if service == "" {
		return pskyerr.New(pskyerr.CodeSecretInvalidInput, "keyring service must not be empty")
	}
	if key == "" {
		return pskyerr.New(pskyerr.CodeSecretInvalidInput, "keyring key must not be empty")
	}
	return nil
}

func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) saveIndex(service string, keys []string) error {
	indexKey := service + indexSuffix

	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("could not remove empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return pskyerr.Wrapf(err, pskyerr.CodeSecretStoreFailure, "saving key index for %s", service)
	}
	return nil
}

func (s *KeyringStore) addToIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.saveIndex(service, append(keys, key))
}

func (s *KeyringStore) removeFromIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	return s.saveIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}
