// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sony/gobreaker/v2"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// IPFSHandler resolves ipfs:// navigations through a local Kubo gateway.
// A circuit breaker shields the daemon from a flapping gateway; open
// circuits fail fast as network errors.
type IPFSHandler struct {
	gateway string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	archive *Archive
}

func NewIPFSHandler(gateway string, timeout time.Duration, archive *Archive) *IPFSHandler {
	settings := gobreaker.Settings{
		Name: "ipfs-gateway",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	}
	return &IPFSHandler{
		gateway: strings.TrimRight(gateway, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		archive: archive,
	}
}

func (h *IPFSHandler) Serve(ctx context.Context, req *Request) (*Response, error) {
	return h.serveNamed(ctx, req, "")
}

// serveNamed fetches a CID, attributing the archive entry to name when the
// request came in through an ipns resolution.
func (h *IPFSHandler) serveNamed(ctx context.Context, req *Request, name string) (*Response, error) {
	cid := req.Host
	if cid == "" {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "ipfs URL %q has no CID", req.URL)
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "ipfs does not support %s", req.Method)
	}

	target := fmt.Sprintf("%s/ipfs/%s%s", h.gateway, cid, req.Path)
	resp, err := h.fetch(ctx, req.Method, target)
	if err != nil {
		return nil, err
	}

	out := newResponse(resp.StatusCode)
	copyHeaders(out.Header, resp.Header)
	out.Body = resp.Body
	ensureContentType(out, req.Path)

	if h.archive != nil && resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		h.archive.Append(name, cid, req.URL)
	}
	return out, nil
}

// fetch performs one gateway round trip through the breaker and maps
// transport and status failures onto the router taxonomy.
func (h *IPFSHandler) fetch(ctx context.Context, method, target string) (*http.Response, error) {
	resp, err := h.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, err
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, mapFetchError(err, "ipfs gateway")
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "content not found at %s", target)
	}
	return resp, nil
}

// mapFetchError converts transport errors into the protocol taxonomy.
func mapFetchError(err error, backend string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pskyerr.Wrapf(err, pskyerr.CodeProtocolBackend, "%s is unavailable", backend)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || isTimeout(err) {
		return pskyerr.Wrapf(err, pskyerr.CodeProtocolTimeout, "%s timed out", backend)
	}
	return pskyerr.Wrapf(err, pskyerr.CodeProtocolBackend, "fetching from %s", backend)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// ensureContentType fills in Content-Type from the path extension, then a
// content sniff, when the backend did not set one.
func ensureContentType(resp *Response, reqPath string) {
	if resp.Header.Get("Content-Type") != "" {
		return
	}
	if ext := path.Ext(reqPath); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			resp.Header.Set("Content-Type", ct)
			return
		}
	}
	if resp.Body == nil {
		return
	}

	// Sniff a prefix and splice it back onto the stream.
	prefix := make([]byte, 3072)
	n, _ := io.ReadFull(resp.Body, prefix)
	prefix = prefix[:n]
	resp.Body = &prefixedReadCloser{prefix: prefix, rest: resp.Body}
	resp.Header.Set("Content-Type", mimetype.Detect(prefix).String())
}

func copyHeaders(dst, src http.Header) {
	for _, k := range []string{"Content-Type", "Content-Length", "Cache-Control", "Etag", "Last-Modified"} {
		if v := src.Get(k); v != "" {
			dst.Set(k, v)
		}
	}
}
