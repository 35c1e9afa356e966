// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package secrets stores model provider API keys in the OS keyring and
// resolves keyring:// references found in the loaded configuration.
package secrets

// Service is the keyring service name every Peersky secret lives under.
const Service = "peersky"

// Store is secure secret storage. The default implementation uses the
// OS keyring; tests substitute an in-memory fake.
type Store interface {
	Store(service, key, value string) error
	// Retrieve returns the value for service/key. Missing keys carry
	// CodeSecretNotFound.
	Retrieve(service, key string) (string, error)
	Delete(service, key string) error
	List(service string) ([]string, error)
}
