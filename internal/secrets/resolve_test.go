// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/secrets"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func TestIsKeyringURI(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"keyring://peersky/anthropic-api-key", true},
		{"keyring://my-svc/my-key", true},
		{"keyring://", true},
		{"${ANTHROPIC_API_KEY}", false},
		{"sk-abc123", false},
		{"", false},
		{"vault://secret/key", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, secrets.IsKeyringURI(tc.value), "value %q", tc.value)
	}
}

func TestParseKeyringURI(t *testing.T) {
	cases := []struct {
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"keyring://peersky/api-key", "peersky", "api-key", false},
		{"keyring://peersky/path/to/key", "peersky", "path/to/key", false},
		{"vault://secret/key", "", "", true},
		{"keyring://peersky/", "", "", true},
		{"keyring:///key", "", "", true},
		{"keyring://", "", "", true},
		{"keyring://peersky", "", "", true},
	}
	for _, tc := range cases {
		svc, key, err := secrets.ParseKeyringURI(tc.uri)
		if tc.wantErr {
			require.Error(t, err, "uri %q", tc.uri)
			assert.True(t, pskyerr.HasCode(err, pskyerr.CodeSecretInvalidInput))
			continue
		}
		require.NoError(t, err, "uri %q", tc.uri)
		assert.Equal(t, tc.wantService, svc)
		assert.Equal(t, tc.wantKey, key)
	}
}

func TestResolveKeyringURI(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store(secrets.Service, "test-key", "resolved-secret"))

	val, err := secrets.ResolveKeyringURI(ks, "keyring://peersky/test-key")
	require.NoError(t, err)
	assert.Equal(t, "resolved-secret", val)

	val, err = secrets.ResolveKeyringURI(ks, "literal-value")
	require.NoError(t, err)
	assert.Equal(t, "literal-value", val)

	_, err = secrets.ResolveKeyringURI(ks, "keyring://peersky/nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving keyring URI")

	_, err = secrets.ResolveKeyringURI(ks, "keyring://bad")
	require.Error(t, err)
}

func TestResolveViperSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store(secrets.Service, "anthropic-api-key", "sk-ant-secret"))

	v := viper.New()
	v.Set("llm.anthropic_api_key", "keyring://peersky/anthropic-api-key")
	v.Set("llm.openai_api_key", "keyring://peersky/missing-key")
	v.Set("networking.listen", "127.0.0.1:9387")

	secrets.ResolveViperSecrets(v, ks)

	assert.Equal(t, "sk-ant-secret", v.GetString("llm.anthropic_api_key"))
	// Unresolvable URIs stay in place for the consumer to surface.
	assert.Equal(t, "keyring://peersky/missing-key", v.GetString("llm.openai_api_key"))
	assert.Equal(t, "127.0.0.1:9387", v.GetString("networking.listen"))
}
