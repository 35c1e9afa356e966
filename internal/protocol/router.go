// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package protocol implements the browser's custom-scheme router: ipfs,
// ipns, hyper, web3, and the in-app peersky pages (with browser as an
// alias). Each scheme has a handler; the router owns dispatch, in-flight
// deduplication, and the uniform error-page redirect.
package protocol

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Request is one scheme navigation as handed over by the shell.
type Request struct {
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	Method string
	Header http.Header
	Body   io.ReadCloser

	// URL is the original navigation URL, kept for error reporting.
	URL string
}

// Response carries the resolved bytes back to the rendering engine.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

func newResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// Handler resolves requests for one scheme.
type Handler interface {
	Serve(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f HandlerFunc) Serve(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// dedupeMaxBytes caps the response size the router will buffer to share a
// fetch between concurrent identical requests. Larger or unsized bodies
// stream to the winning request only.
const dedupeMaxBytes = 4 << 20

// Router dispatches scheme navigations to their handlers.
type Router struct {
	handlers map[string]Handler
	flights  singleflight.Group
}

// NewRouter creates an empty router. Schemes are attached with Register.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register attaches a handler for a scheme. The browser scheme is an alias
// for peersky and needs no registration of its own.
func (r *Router) Register(scheme string, h Handler) {
	r.handlers[scheme] = h
}

// ParseURL splits a navigation URL into a Request. The browser scheme is
// normalized to peersky here so handlers never see the alias.
func ParseURL(raw, method string) (*Request, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "navigation URL does not parse: %s", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "navigation URL %q has no scheme", raw)
	}
	if scheme == "browser" {
		scheme = "peersky"
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Scheme: scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
		Method: method,
		Header: make(http.Header),
		URL:    raw,
	}, nil
}

// Dispatch routes a request to its scheme handler. Errors become a 302
// redirect to the in-app error page; backend internals never reach the
// document.
func (r *Router) Dispatch(ctx context.Context, req *Request) *Response {
	resp, err := r.dispatch(ctx, req)
	if err != nil {
		return errorRedirect(err, req.URL)
	}
	return resp
}

func (r *Router) dispatch(ctx context.Context, req *Request) (*Response, error) {
	h, ok := r.handlers[req.Scheme]
	if !ok {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolSchemeUnknown, "no handler for scheme %q", req.Scheme)
	}

	// Concurrent GETs for the same key share one fetch when the body is
	// small enough to replay; everything else runs independently.
	if req.Method == http.MethodGet && contentAddressed(req.Scheme) {
		return r.dedupedServe(ctx, h, req)
	}
	return h.Serve(ctx, req)
}

// contentAddressed reports whether a scheme's GET responses are immutable
// for a given URL and therefore safe to share between requests.
func contentAddressed(scheme string) bool {
	return scheme == "ipfs" || scheme == "ipns" || scheme == "web3"
}

// sharedResult is what one singleflight winner hands to its waiters.
type sharedResult struct {
	status int
	header http.Header
	body   []byte // nil when the body streamed to the winner only

	// resp is consumed by the winner when the body was too large to buffer.
	resp *Response
}

func (r *Router) dedupedServe(ctx context.Context, h Handler, req *Request) (*Response, error) {
	key := req.Scheme + "://" + req.Host + req.Path
	v, err, shared := r.flights.Do(key, func() (any, error) {
		resp, err := h.Serve(ctx, req)
		if err != nil {
			return nil, err
		}
		buf, ok, err := bufferBody(resp)
		if err != nil {
			return nil, err
		}
		if ok {
			return &sharedResult{status: resp.Status, header: resp.Header, body: buf}, nil
		}
		// Too large to replay: do not let future callers join this flight.
		r.flights.Forget(key)
		return &sharedResult{resp: resp}, nil
	})
	if err != nil {
		return nil, err
	}

	res := v.(*sharedResult)
	if res.body != nil {
		out := &Response{Status: res.status, Header: res.header.Clone()}
		out.Body = io.NopCloser(bytes.NewReader(res.body))
		return out, nil
	}
	if !shared {
		return res.resp, nil
	}
	// A waiter joined a flight whose body streamed elsewhere; refetch.
	return h.Serve(ctx, req)
}

// bufferBody reads a response body into memory when it fits the dedupe
// cap. Returns ok=false (body untouched beyond what was read back) when
// the response is too large or unsized reads exceed the cap. A mid-stream
// read failure is returned as an error so a truncated body is never
// served as a complete response.
func bufferBody(resp *Response) (buf []byte, ok bool, err error) {
	if resp.Body == nil {
		return []byte{}, true, nil
	}
	buf = make([]byte, 0, 64<<10)
	tmp := make([]byte, 32<<10)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			if len(buf)+n > dedupeMaxBytes {
				// Reassemble a body that replays what we consumed.
				rest := resp.Body
				resp.Body = &prefixedReadCloser{
					prefix: append(buf, tmp[:n]...),
					rest:   rest,
				}
				return nil, false, nil
			}
			buf = append(buf, tmp[:n]...)
		}
		if readErr == io.EOF {
			resp.Body.Close()
			return buf, true, nil
		}
		if readErr != nil {
			resp.Body.Close()
			return nil, false, pskyerr.Wrap(readErr, pskyerr.CodeProtocolBackend, "reading upstream body")
		}
	}
}

type prefixedReadCloser struct {
	prefix []byte
	rest   io.ReadCloser
}

func (p *prefixedReadCloser) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.rest.Read(b)
}

func (p *prefixedReadCloser) Close() error { return p.rest.Close() }
