// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/peersky-browser/peersky/internal/protocol"
)

func (s *Server) registerFetchRoute() {
	s.router.HandleFunc("/api/v1/fetch", s.handleFetch)

	// The fetch handler streams arbitrary response bodies and so needs raw
	// http.ResponseWriter access; the chi route above serves requests and
	// this operation entry documents it.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "fetch",
		Method:      http.MethodGet,
		Path:        "/api/v1/fetch",
		Summary:     "Fetch a custom-scheme URL",
		Description: "Resolves an ipfs/ipns/hyper/web3/peersky URL through the protocol router and streams the result. Resolution failures stream the error page redirect, not an API error.",
		Tags:        []string{"protocol"},
		Parameters: []*huma.Param{
			{
				Name:        "url",
				In:          "query",
				Required:    true,
				Description: "Navigation URL, custom scheme included",
				Schema:      &huma.Schema{Type: "string"},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {Description: "Resolved content"},
			"302": {Description: "Redirect to the in-app error page"},
			"400": {Description: "Unparseable navigation URL"},
		},
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, `{"error":"url query parameter is required"}`, http.StatusBadRequest)
		return
	}

	req, err := protocol.ParseURL(raw, r.Method)
	if err != nil {
		http.Error(w, `{"error":"navigation URL does not parse"}`, http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		req.Body = r.Body
		req.Header = r.Header.Clone()
	}

	resp := s.deps.Router.Dispatch(r.Context(), req)
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)

	if resp.Body == nil {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// The shell hung up mid-body; nothing to salvage.
		slog.Debug("fetch body copy aborted", "url", raw, "error", err)
	}
}
