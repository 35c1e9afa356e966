// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package errors defines the coded error model shared by every subsystem.
// Codes follow the "area.operation.reason" convention; the reason suffix
// maps deterministically onto the six kinds surfaced to documents:
// network, not-found, invalid, io, permission, internal.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.io"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeSessionPolicyMismatch      Code = "config.session.assert.internal"

	CodeExtensionManifestInvalid  Code = "extension.manifest.parse.invalid"
	CodeExtensionValidationDenied Code = "extension.validate.outcome.denied"
	CodeExtensionNotFound         Code = "extension.registry.get.not_found"
	CodeExtensionRegistryIO       Code = "extension.registry.persist.io"
	CodeExtensionInstallNetwork   Code = "extension.install.fetch.network"
	CodeExtensionInstallInvalid   Code = "extension.install.payload.invalid"
	CodeExtensionInstallIO        Code = "extension.install.unpack.io"
	CodeExtensionSystemLocked     Code = "extension.uninstall.system.denied"
	CodeExtensionActionMissing    Code = "extension.action.get.not_found"
	CodeExtensionWebStoreURL      Code = "extension.webstore.url.invalid"

	CodeProtocolSchemeUnknown  Code = "protocol.scheme.dispatch.invalid"
	CodeProtocolRequestInvalid Code = "protocol.request.parse.invalid"
	CodeProtocolNotFound       Code = "protocol.resolve.not_found"
	CodeProtocolBackend        Code = "protocol.backend.fetch.network"
	CodeProtocolTimeout        Code = "protocol.backend.fetch.timeout"
	CodeProtocolArchiveIO      Code = "protocol.archive.persist.io"

	CodePermissionDenied    Code = "permission.request.denied"
	CodePermissionPersistIO Code = "permission.persist.write.io"

	CodeBridgeMethodUndefined Code = "bridge.invoke.method.denied"
	CodeBridgeArgumentInvalid Code = "bridge.invoke.argument.invalid"
	CodeBridgeDocumentUnknown Code = "bridge.document.get.not_found"
	CodeBridgeIteratorExpired Code = "bridge.iterator.get.not_found"

	CodeSettingsKeyDenied   Code = "settings.get.key.denied"
	CodeSettingsKeyInvalid  Code = "settings.set.key.invalid"
	CodeSettingsPersistIO   Code = "settings.persist.write.io"
	CodeSettingsUploadLimit Code = "settings.wallpaper.upload.invalid"

	CodeStoreNotFound Code = "store.entity.get.not_found"
	CodeStoreIO       Code = "store.file.write.io"
	CodeStoreCorrupt  Code = "store.file.parse.invalid"
	CodeStoreDatabase Code = "store.database.query.io"
	CodeStoreConflict Code = "store.entity.put.conflict"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.network"
	CodeProviderNotFound        Code = "provider.registry.not_found"

	CodeSecretNotFound     Code = "secret.get.not_found"
	CodeSecretInvalidInput Code = "secret.input.invalid"
	CodeSecretStoreFailure Code = "secret.store.io"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid_value"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLIDaemonNotRunning Code = "cli.daemon.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
)

// Kind is one of the six failure kinds surfaced to documents.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindNotFound   Kind = "not-found"
	KindInvalid    Kind = "invalid"
	KindIO         Kind = "io"
	KindPermission Kind = "permission"
	KindInternal   Kind = "internal"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldExtension(value string) Attr {
	return Field("extension_id", value)
}

func FieldScheme(value string) Attr {
	return Field("scheme", value)
}

func FieldOrigin(value string) Attr {
	return Field("origin", value)
}

func FieldDocument(value string) Attr {
	return Field("document_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// KindOf maps an error onto the surfaced failure taxonomy. Errors without a
// recognized code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	switch reason(CodeOf(err)) {
	case "network", "timeout", "unreachable":
		return KindNetwork
	case "not_found":
		return KindNotFound
	case "invalid", "invalid_input", "invalid_value", "invalid_format":
		return KindInvalid
	case "io":
		return KindIO
	case "denied", "forbidden", "blocked":
		return KindPermission
	default:
		return KindInternal
	}
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalid
}

func IsPermission(err error) bool {
	return KindOf(err) == KindPermission
}

func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}

func IsIO(err error) bool {
	return KindOf(err) == KindIO
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindNetwork:
		if IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
