// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"bytes"
	"context"
	"embed"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

//go:embed pages
var pagesFS embed.FS

// PeerskyHandler serves the in-app chrome pages (home, settings,
// extensions, bookmarks, tabs, error) and their assets from a read-only
// embedded filesystem. browser:// navigations land here via the router's
// alias normalization.
type PeerskyHandler struct {
	pages fs.FS
}

func NewPeerskyHandler() *PeerskyHandler {
	sub, err := fs.Sub(pagesFS, "pages")
	if err != nil {
		// The subtree is embedded at build time; absence is a packaging bug.
		panic(err)
	}
	return &PeerskyHandler{pages: sub}
}

func (h *PeerskyHandler) Serve(_ context.Context, req *Request) (*Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "peersky pages do not support %s", req.Method)
	}

	name := h.resolvePath(req.Host, req.Path)
	data, err := fs.ReadFile(h.pages, name)
	if err != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "no page at %s", req.URL)
	}

	resp := newResponse(http.StatusOK)
	resp.Header.Set("Content-Type", contentTypeFor(name))
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// resolvePath maps peersky://<area>[/<path>] onto the embedded tree:
// bare areas serve <area>.html, deeper paths serve files verbatim.
func (h *PeerskyHandler) resolvePath(area, sub string) string {
	sub = strings.TrimPrefix(sub, "/")
	if area == "" {
		area = "home"
	}
	if sub == "" {
		return area + ".html"
	}
	return path.Join(area, sub)
}

// ReadCSS returns an embedded stylesheet by name, for the bridge's CSS
// reader. Only files under theme/ are reachable.
func (h *PeerskyHandler) ReadCSS(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.Contains(name, "/") {
		return "", pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "invalid stylesheet name %q", name)
	}
	if !strings.HasSuffix(name, ".css") {
		name += ".css"
	}
	data, err := fs.ReadFile(h.pages, path.Join("theme", name))
	if err != nil {
		return "", pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "no stylesheet %q", name)
	}
	return string(data), nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
