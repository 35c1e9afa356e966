// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/singleflight"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// ensRegistry is the canonical ENS registry contract.
const ensRegistry = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

// Function selectors: resolver(bytes32), contenthash(bytes32).
const (
	selResolver    = "0x0178b8bf"
	selContenthash = "0xbc1c58d1"
)

// cidBase32 is the lowercase base32 alphabet multibase uses for CIDv1.
var cidBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Web3Handler resolves web3://<ens-name> to a contenthash and re-dispatches
// the navigation under the ipfs or ipns scheme.
type Web3Handler struct {
	rpc    string
	client *http.Client
	cache  *resolveCache
	flight singleflight.Group
	ipfs   *IPFSHandler
	ipns   *IPNSHandler
}

func NewWeb3Handler(rpcURL string, timeout, ttl time.Duration, cacheEntries int, ipfs *IPFSHandler, ipns *IPNSHandler) *Web3Handler {
	return &Web3Handler{
		rpc:    rpcURL,
		client: &http.Client{Timeout: timeout},
		cache:  newResolveCache(ttl, cacheEntries),
		ipfs:   ipfs,
		ipns:   ipns,
	}
}

func (h *Web3Handler) Serve(ctx context.Context, req *Request) (*Response, error) {
	name := strings.ToLower(req.Host)
	if name == "" {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolRequestInvalid, "web3 URL %q has no name", req.URL)
	}

	target, err := h.ResolveContent(ctx, name)
	if err != nil {
		return nil, err
	}

	fetch := *req
	fetch.Scheme = target.Scheme
	fetch.Host = target.Key
	switch target.Scheme {
	case "ipfs":
		return h.ipfs.serveNamed(ctx, &fetch, name)
	case "ipns":
		return h.ipns.Serve(ctx, &fetch)
	default:
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ENS name %q points at unsupported content %q", name, target.Scheme)
	}
}

// ContentTarget is a decoded ENS contenthash.
type ContentTarget struct {
	Scheme string // "ipfs" or "ipns"
	Key    string // base32 CID or ipns name
}

// ResolveContent resolves an ENS name to its contenthash target, caching
// the result. Concurrent resolutions of one name share an RPC exchange.
func (h *Web3Handler) ResolveContent(ctx context.Context, name string) (ContentTarget, error) {
	if v, ok := h.cache.Get(name); ok {
		scheme, key, _ := strings.Cut(v, " ")
		return ContentTarget{Scheme: scheme, Key: key}, nil
	}

	v, err, _ := h.flight.Do(name, func() (any, error) {
		target, err := h.resolveRemote(ctx, name)
		if err != nil {
			return nil, err
		}
		h.cache.Set(name, target.Scheme+" "+target.Key)
		return target, nil
	})
	if err != nil {
		return ContentTarget{}, err
	}
	return v.(ContentTarget), nil
}

func (h *Web3Handler) resolveRemote(ctx context.Context, name string) (ContentTarget, error) {
	node := Namehash(name)

	resolverRet, err := h.ethCall(ctx, ensRegistry, selResolver+hex.EncodeToString(node[:]))
	if err != nil {
		return ContentTarget{}, err
	}
	resolver := addressFromWord(resolverRet)
	if resolver == "" {
		return ContentTarget{}, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ENS name %q has no resolver", name)
	}

	hashRet, err := h.ethCall(ctx, resolver, selContenthash+hex.EncodeToString(node[:]))
	if err != nil {
		return ContentTarget{}, err
	}
	contenthash, err := dynamicBytes(hashRet)
	if err != nil || len(contenthash) == 0 {
		return ContentTarget{}, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ENS name %q has no contenthash", name)
	}

	return decodeContenthash(name, contenthash)
}

// Namehash implements the ENS name hashing algorithm (EIP-137).
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := keccak256([]byte(labels[i]))
		node = keccak256(append(node[:], label[:]...))
	}
	return node
}

func keccak256(data []byte) [32]byte {
	var out [32]byte
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	copy(out[:], d.Sum(nil))
	return out
}

// ethCall performs one eth_call against the configured RPC endpoint. data
// is the 0x-prefixed selector followed by hex-encoded arguments.
func (h *Web3Handler) ethCall(ctx context.Context, to, data string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_call",
		"params": []any{
			map[string]string{"to": to, "data": data},
			"latest",
		},
	})
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "encoding eth_call")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.rpc, bytes.NewReader(payload))
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "building eth_call request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, mapFetchError(err, "eth rpc")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolBackend, "eth rpc returned HTTP %d", resp.StatusCode)
	}

	var out struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "decoding eth_call response")
	}
	if out.Error != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeProtocolBackend, "eth_call failed: %s", out.Error.Message)
	}

	raw := strings.TrimPrefix(out.Result, "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeProtocolBackend, "decoding eth_call result")
	}
	return decoded, nil
}

// addressFromWord extracts the 20-byte address from a 32-byte ABI word,
// returning empty for the zero address.
func addressFromWord(word []byte) string {
	if len(word) < 32 {
		return ""
	}
	addr := word[12:32]
	if bytes.Equal(addr, make([]byte, 20)) {
		return ""
	}
	return "0x" + hex.EncodeToString(addr)
}

// dynamicBytes decodes an ABI-encoded dynamic bytes return value.
func dynamicBytes(data []byte) ([]byte, error) {
	if len(data) < 64 {
		return nil, fmt.Errorf("ABI bytes too short")
	}
	offset := int(be32(data[28:32]))
	if offset+32 > len(data) {
		return nil, fmt.Errorf("ABI bytes offset out of range")
	}
	length := int(be32(data[offset+28 : offset+32]))
	start := offset + 32
	if start+length > len(data) {
		return nil, fmt.Errorf("ABI bytes length out of range")
	}
	return data[start : start+length], nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Contenthash multicodec prefixes (EIP-1577): ipfs-ns and ipns-ns.
var (
	prefixIPFS = []byte{0xe3, 0x01}
	prefixIPNS = []byte{0xe5, 0x01}
)

// decodeContenthash converts an EIP-1577 contenthash into a dispatchable
// target: an ipfs CID (multibase base32) or an ipns name.
func decodeContenthash(name string, hash []byte) (ContentTarget, error) {
	switch {
	case bytes.HasPrefix(hash, prefixIPFS):
		cid := hash[len(prefixIPFS):]
		if len(cid) == 0 {
			return ContentTarget{}, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ENS name %q has an empty ipfs contenthash", name)
		}
		return ContentTarget{Scheme: "ipfs", Key: "b" + cidBase32.EncodeToString(cid)}, nil
	case bytes.HasPrefix(hash, prefixIPNS):
		payload := hash[len(prefixIPNS):]
		if len(payload) == 0 {
			return ContentTarget{}, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ENS name %q has an empty ipns contenthash", name)
		}
		return ContentTarget{Scheme: "ipns", Key: "b" + cidBase32.EncodeToString(payload)}, nil
	default:
		return ContentTarget{}, pskyerr.Errorf(pskyerr.CodeProtocolNotFound, "ENS name %q has an unsupported contenthash codec", name)
	}
}

// ResetCache drops cached resolutions; wired to the session cache clear.
func (h *Web3Handler) ResetCache() {
	h.cache.Reset()
}
