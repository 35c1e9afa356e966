// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// HyperHandler proxies hyper:// navigations to a local hyper gateway.
// GET streams drive bytes, PUT writes the raw body, DELETE removes, and
// POST hyper://localhost/?key=<name> creates or returns a named drive.
type HyperHandler struct {
	gateway string
	client  *http.Client
	archive *Archive
}

func NewHyperHandler(gateway string, timeout time.Duration, archive *Archive) *HyperHandler {
	return &HyperHandler{
		gateway: strings.TrimRight(gateway, "/"),
		client:  &http.Client{Timeout: timeout},
		archive: archive,
	}
}

func (h *HyperHandler) Serve(ctx context.Context, req *Request) (*Response, error) {
	if req.Host == "" {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "hyper URL %q has no drive key", req.URL)
	}

	if req.Method == http.MethodPost && req.Host == "localhost" {
		return h.createNamedDrive(ctx, req)
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
	default:
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "hyper does not support %s", req.Method)
	}

	target := fmt.Sprintf("%s/hyper/%s%s", h.gateway, req.Host, req.Path)
	var body io.Reader
	if req.Method == http.MethodPut {
		body = req.Body
	}
	gwReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "building hyper request")
	}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		gwReq.Header.Set("Content-Type", ct)
	}

	resp, err := h.client.Do(gwReq)
	if err != nil {
		return nil, mapFetchError(err, "hyper gateway")
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "no content at %s", req.URL)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolBackend, "hyper gateway returned HTTP %d", resp.StatusCode)
	}

	out := newResponse(resp.StatusCode)
	copyHeaders(out.Header, resp.Header)
	out.Body = resp.Body
	if req.Method == http.MethodGet {
		ensureContentType(out, req.Path)
	}

	if h.archive != nil && req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		h.archive.Append("", req.Host, req.URL)
	}
	return out, nil
}

// createNamedDrive asks the gateway for the drive behind a human name,
// creating it on first use. The response body is the drive URL as text.
func (h *HyperHandler) createNamedDrive(ctx context.Context, req *Request) (*Response, error) {
	name := req.Query.Get("key")
	if name == "" {
		return nil, pskyerr.New(pskyerr.CodeProtocolRequestInvalid, "named drive request is missing the key parameter")
	}

	endpoint := h.gateway + "/drive?key=" + url.QueryEscape(name)
	gwReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "building drive request")
	}

	resp, err := h.client.Do(gwReq)
	if err != nil {
		return nil, mapFetchError(err, "hyper gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolBackend, "drive creation returned HTTP %d", resp.StatusCode)
	}

	key, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "reading drive key")
	}
	driveURL := strings.TrimSpace(string(key))
	if !strings.HasPrefix(driveURL, "hyper://") {
		driveURL = "hyper://" + driveURL
	}

	if h.archive != nil {
		h.archive.Append(name, strings.TrimPrefix(driveURL, "hyper://"), driveURL)
	}

	out := newResponse(http.StatusOK)
	out.Header.Set("Content-Type", "text/plain; charset=utf-8")
	out.Body = io.NopCloser(strings.NewReader(driveURL))
	return out, nil
}
