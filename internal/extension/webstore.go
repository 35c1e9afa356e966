// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// webStoreHosts are the only accepted Web Store detail-page hosts.
var webStoreHosts = map[string]bool{
	"chrome.google.com":       true,
	"chromewebstore.google.com": true,
}

// idTokenRe finds a 32-char a-p token anywhere in a string.
var idTokenRe = regexp.MustCompile(`[a-p]{32}`)

// ParseWebStoreURL extracts the extension id from a Chrome Web Store detail
// URL. The id is searched in the path first, then the query, then the whole
// URL. Bare 32-char ids are accepted as-is.
func ParseWebStoreURL(raw string) (string, error) {
	if ValidID(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionWebStoreURL, "web store URL does not parse: %s", err)
	}

	host := strings.ToLower(u.Hostname())
	if !webStoreHosts[host] {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionWebStoreURL, "host %q is not the Chrome Web Store", host)
	}
	if !strings.Contains(u.Path, "/detail/") && !strings.HasPrefix(u.Path, "/webstore/detail") {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionWebStoreURL, "URL is not a Web Store detail page")
	}

	for _, candidate := range []string{u.Path, u.RawQuery, raw} {
		if id := idTokenRe.FindString(candidate); id != "" {
			return id, nil
		}
	}
	return "", pskyerr.Errorf(pskyerr.CodeExtensionWebStoreURL, "no extension id found in %q", raw)
}

// BuildWebStoreURL returns the canonical detail-page URL for an id.
func BuildWebStoreURL(id string) string {
	return "https://chromewebstore.google.com/detail/" + id
}

// crxEndpoint is Google's CRX delivery service.
const crxEndpoint = "https://clients2.google.com/service/update2/crx"

// crxDownloadURL builds the CRX fetch URL for an extension id pinned to a
// Chrome version token.
func crxDownloadURL(id, chromeVersion string) string {
	q := url.Values{}
	q.Set("response", "redirect")
	q.Set("prodversion", chromeVersion)
	q.Set("acceptformat", "crx2,crx3")
	q.Set("x", fmt.Sprintf("id=%s&uc", id))
	return crxEndpoint + "?" + q.Encode()
}

// Downloader fetches extension payloads. The production implementation is
// WebStoreClient; tests substitute fakes.
type Downloader interface {
	// FetchCRX downloads the CRX payload for id. The returned bytes still
	// carry the CRX header.
	FetchCRX(ctx context.Context, id string) ([]byte, error)
	// LatestVersion returns the version currently served for id.
	LatestVersion(ctx context.Context, id string) (string, error)
}

// WebStoreClient downloads CRX payloads from the Chrome Web Store with
// retries and a hard timeout.
type WebStoreClient struct {
	chromeVersion string
	maxBytes      int64
	client        *retryablehttp.Client
}

// NewWebStoreClient creates a WebStoreClient. maxBytes caps the accepted
// payload size; timeout bounds each fetch.
func NewWebStoreClient(chromeVersion string, maxBytes int64, timeout time.Duration) *WebStoreClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	return &WebStoreClient{
		chromeVersion: chromeVersion,
		maxBytes:      maxBytes,
		client:        rc,
	}
}

func (c *WebStoreClient) FetchCRX(ctx context.Context, id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionWebStoreURL, "invalid extension id %q", id)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, crxDownloadURL(id, c.chromeVersion), nil)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeExtensionInstallNetwork, "building CRX request", pskyerr.FieldExtension(id))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeExtensionInstallNetwork, "downloading CRX", pskyerr.FieldExtension(id))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionInstallNetwork,
			"CRX download for %s returned HTTP %d", id, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeExtensionInstallNetwork, "reading CRX body", pskyerr.FieldExtension(id))
	}
	if int64(len(body)) > c.maxBytes {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid,
			"CRX payload for %s exceeds %d bytes", id, c.maxBytes)
	}
	return body, nil
}

// LatestVersion asks the delivery service which version it currently serves
// for id. The version travels in the redirect target's filename
// (…/<id>_<version>.crx), so a HEAD-style probe of the redirect suffices.
func (c *WebStoreClient) LatestVersion(ctx context.Context, id string) (string, error) {
	if !ValidID(id) {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionWebStoreURL, "invalid extension id %q", id)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, crxDownloadURL(id, c.chromeVersion), nil)
	if err != nil {
		return "", pskyerr.Wrap(err, pskyerr.CodeExtensionInstallNetwork, "building version probe", pskyerr.FieldExtension(id))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", pskyerr.Wrap(err, pskyerr.CodeExtensionInstallNetwork, "probing latest version", pskyerr.FieldExtension(id))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionInstallNetwork,
			"version probe for %s returned HTTP %d", id, resp.StatusCode)
	}

	version := versionFromCRXPath(resp.Request.URL.Path)
	if version == "" {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionInstallNetwork,
			"version probe for %s did not expose a version", id)
	}
	return version, nil
}

// versionFromCRXPath extracts "1.2.3" from ".../extension_1_2_3.crx" style
// redirect paths: the trailing run of numeric underscore segments is the
// version.
func versionFromCRXPath(path string) string {
	base := path
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".crx")

	parts := strings.Split(base, "_")
	var digits []string
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" || strings.Trim(parts[i], "0123456789") != "" {
			break
		}
		digits = append([]string{parts[i]}, digits...)
	}
	if len(digits) == 0 {
		return ""
	}
	return strings.Join(digits, ".")
}
