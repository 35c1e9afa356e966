// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// IPNSHandler resolves ipns://<name> to a CID through the Kubo API, caches
// the resolution for a fixed TTL, and delegates the fetch to the ipfs
// handler.
type IPNSHandler struct {
	api    string
	client *http.Client
	cache  *resolveCache
	flight singleflight.Group
	ipfs   *IPFSHandler
}

func NewIPNSHandler(api string, timeout, ttl time.Duration, cacheEntries int, ipfs *IPFSHandler) *IPNSHandler {
	return &IPNSHandler{
		api:    strings.TrimRight(api, "/"),
		client: &http.Client{Timeout: timeout},
		cache:  newResolveCache(ttl, cacheEntries),
		ipfs:   ipfs,
	}
}

func (h *IPNSHandler) Serve(ctx context.Context, req *Request) (*Response, error) {
	name := req.Host
	if name == "" {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "ipns URL %q has no name", req.URL)
	}

	cid, err := h.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	fetch := *req
	fetch.Scheme = "ipfs"
	fetch.Host = cid
	return h.ipfs.serveNamed(ctx, &fetch, name)
}

// Resolve maps an IPNS name to its current CID. Concurrent resolutions of
// the same name share one API call.
func (h *IPNSHandler) Resolve(ctx context.Context, name string) (string, error) {
	if cid, ok := h.cache.Get(name); ok {
		return cid, nil
	}

	v, err, _ := h.flight.Do(name, func() (any, error) {
		cid, err := h.resolveRemote(ctx, name)
		if err != nil {
			return nil, err
		}
		h.cache.Set(name, cid)
		return cid, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (h *IPNSHandler) resolveRemote(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v0/name/resolve?arg=%s", h.api, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "building ipns resolve request")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", mapFetchError(err, "ipns resolver")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ipns name %q did not resolve (HTTP %d)", name, resp.StatusCode)
	}

	var out struct {
		Path string `json:"Path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "decoding ipns resolve response")
	}

	cid, ok := strings.CutPrefix(out.Path, "/ipfs/")
	if !ok || cid == "" {
		return "", pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ipns name %q resolved to unexpected path %q", name, out.Path)
	}
	// A resolution may carry a subpath; the CID is the first segment.
	if idx := strings.IndexByte(cid, '/'); idx > 0 {
		cid = cid[:idx]
	}
	return cid, nil
}

// ResetCache drops cached resolutions; wired to the session cache clear.
func (h *IPNSHandler) ResetCache() {
	h.cache.Reset()
}
