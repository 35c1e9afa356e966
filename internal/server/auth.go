// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
)

// loopbackOnly rejects requests that do not originate from the local
// machine. The API carries privileged operations and is never meant to
// be reachable from the network, even when misconfigured to listen on a
// non-loopback address.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() {
			slog.Warn("rejected non-loopback request", "remote", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
