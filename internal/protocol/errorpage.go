// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"net/http"
	"net/url"
	"strconv"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Chromium-style negative error codes surfaced on the error page alongside
// plain HTTP statuses.
const (
	errNameNotResolved      = -105
	errInternetDisconnected = -106
	errTimedOut             = -7
	errCertInvalid          = -202
)

// errorIcons maps an error code to the glyph the error page shows.
var errorIcons = map[int]string{
	http.StatusNotFound:       "🔍",
	errNameNotResolved:        "🌐",
	errInternetDisconnected:   "🌐",
	errTimedOut:               "⏱️",
	http.StatusGatewayTimeout: "⏱️",
	errCertInvalid:            "🔒",
}

// errorExplanations gives the fixed, friendly explanation per code.
var errorExplanations = map[int]string{
	http.StatusNotFound:       "The content could not be found. It may have been removed, or the address may be mistyped.",
	errNameNotResolved:        "The name could not be resolved. Check the address, or try again when the network is available.",
	errInternetDisconnected:   "No network connection is available.",
	errTimedOut:               "The request took too long. The peer or gateway may be offline.",
	http.StatusGatewayTimeout: "The request took too long. The peer or gateway may be offline.",
	errCertInvalid:            "The connection is not secure. The site's certificate could not be verified.",
	http.StatusBadGateway:     "The backend gateway returned an unexpected response.",
}

// ErrorIcon returns the icon for an error code, with a generic fallback.
func ErrorIcon(code int) string {
	if icon, ok := errorIcons[code]; ok {
		return icon
	}
	return "⚠️"
}

// ErrorExplanation returns the explanation paragraph for a code.
func ErrorExplanation(code int) string {
	if text, ok := errorExplanations[code]; ok {
		return text
	}
	return "Something went wrong while loading this page."
}

// errorCode maps a handler error onto the code the error page shows.
func errorCode(err error) int {
	switch {
	case pskyerr.IsTimeout(err):
		return errTimedOut
	case pskyerr.IsNotFound(err):
		return http.StatusNotFound
	case pskyerr.IsNetwork(err):
		return errNameNotResolved
	case pskyerr.IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorRedirect builds the 302 response sending a failed navigation to the
// in-app error page. The query carries only the code, a short message, and
// the failed URL.
func errorRedirect(err error, failedURL string) *Response {
	q := url.Values{}
	q.Set("code", strconv.Itoa(errorCode(err)))
	q.Set("msg", publicMessage(err))
	q.Set("url", failedURL)

	resp := newResponse(http.StatusFound)
	resp.Header.Set("Location", "peersky://error?"+q.Encode())
	return resp
}

// publicMessage returns a message safe to show in the document. Backend
// detail stays in the logs.
func publicMessage(err error) string {
	switch pskyerr.KindOf(err) {
	case pskyerr.KindNotFound:
		return "Content not found"
	case pskyerr.KindNetwork:
		if pskyerr.IsTimeout(err) {
			return "Request timed out"
		}
		return "Could not reach the network backend"
	case pskyerr.KindInvalid:
		return "The address is not valid"
	default:
		return "Internal error"
	}
}
