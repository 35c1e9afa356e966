// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/peersky-browser/peersky/internal/config"
	"github.com/peersky-browser/peersky/internal/extension"
	"github.com/peersky-browser/peersky/internal/protocol"
	"github.com/peersky-browser/peersky/internal/settings"
	"github.com/peersky-browser/peersky/internal/store"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// ChatMessage is one turn of an llm-chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMService is the model facade exposed to low-privilege documents.
type LLMService interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (Iterator, error)
}

// TabsController is the shell-side tab manager the tabs page drives.
type TabsController interface {
	Invoke(ctx context.Context, op string, args json.RawMessage) (any, error)
}

// Deps are the privileged components the bridge dispatches into. Nil
// entries disable the corresponding methods operationally, never by
// changing a class surface.
type Deps struct {
	Classifier *Classifier
	Settings   *settings.Store
	Registry   *extension.Registry
	Installer  *extension.Installer
	Actions    *extension.ActionBroker
	Bookmarks  store.BookmarkStore
	Archive    *protocol.Archive
	Pages      *protocol.PeerskyHandler
	LLM        LLMService
	Tabs       TabsController
}

// Document is one registered rendering context. Its class, and therefore
// its callable surface, never changes after registration.
type Document struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Class Class  `json:"class"`

	iterators *iteratorTable

	mu       sync.Mutex
	webviews map[string]bool
}

// Envelope is the operational result wrapper. Programming errors (bad
// types, undefined names, out-of-class keys) surface as returned errors
// instead; a UI never sees a thrown error from an operational path.
type Envelope struct {
	OK        bool   `json:"ok"`
	Value     any    `json:"value,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func envelope(value any, err error) Envelope {
	if err != nil {
		return Envelope{OK: false, ErrorKind: string(pskyerr.KindOf(err)), Error: err.Error()}
	}
	return Envelope{OK: true, Value: value}
}

// Bridge registers documents and mediates their RPC calls.
type Bridge struct {
	deps      Deps
	partition string

	mu   sync.RWMutex
	docs map[string]*Document
}

// New builds a bridge over deps. The session partition is captured here
// and re-asserted on every privileged call.
func New(deps Deps) *Bridge {
	if deps.Classifier == nil {
		deps.Classifier = NewClassifier(nil)
	}
	return &Bridge{
		deps:      deps,
		partition: config.Session().Partition(),
		docs:      make(map[string]*Document),
	}
}

// RegisterDocument classifies url and admits the document.
func (b *Bridge) RegisterDocument(url string) *Document {
	doc := &Document{
		ID:        uuid.NewString(),
		URL:       url,
		Class:     b.deps.Classifier.Classify(url),
		iterators: newIteratorTable(0),
		webviews:  make(map[string]bool),
	}

	b.mu.Lock()
	b.docs[doc.ID] = doc
	b.mu.Unlock()
	return doc
}

// CloseDocument forgets the document and releases every resource it
// holds, iterator handles included. Unknown ids are a no-op.
func (b *Bridge) CloseDocument(id string) {
	b.mu.Lock()
	doc, ok := b.docs[id]
	if ok {
		delete(b.docs, id)
	}
	b.mu.Unlock()

	if ok {
		doc.iterators.releaseAll()
	}
}

// Document returns a registered document by id.
func (b *Bridge) Document(id string) (*Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.docs[id]
	if !ok {
		return nil, pskyerr.Errorf(pskyerr.CodeBridgeDocumentUnknown, "no document %q", id)
	}
	return doc, nil
}

// Invoke runs one RPC on behalf of docID. The returned error is the
// "throw" path: undefined names, argument type mismatches, out-of-class
// settings keys. Operational failures come back inside the result value.
func (b *Bridge) Invoke(ctx context.Context, docID, method string, args json.RawMessage) (any, error) {
	if err := config.Session().AssertPartition(b.partition); err != nil {
		return nil, err
	}

	doc, err := b.Document(docID)
	if err != nil {
		return nil, err
	}
	if !Allows(doc.Class, method) {
		return nil, pskyerr.Errorf(pskyerr.CodeBridgeMethodUndefined,
			"%s is not defined for %s pages", method, classLabel[doc.Class])
	}
	return b.dispatch(ctx, doc, method, args)
}

func (b *Bridge) dispatch(ctx context.Context, doc *Document, method string, args json.RawMessage) (any, error) {
	switch method {
	case MethodSettingsGet:
		return b.settingsGet(doc, args)
	case MethodSettingsSet:
		return b.settingsSet(args)
	case MethodSettingsGetAll:
		return b.deps.Settings.GetAll(), nil
	case MethodSettingsReset:
		return envelope(nil, b.deps.Settings.Reset()), nil
	case MethodSettingsClearCache:
		return envelope(nil, b.deps.Settings.ClearBrowserCache()), nil
	case MethodSettingsResetP2P:
		b.deps.Settings.ResetP2P()
		return envelope(nil, nil), nil
	case MethodSettingsUploadWallpaper:
		return b.uploadWallpaper(args)
	case MethodSettingsWallpaperURL:
		value, err := b.deps.Settings.Get(settings.KeyWallpaper)
		if err != nil {
			return nil, err
		}
		return value, nil
	case MethodSettingsArchiveData:
		return b.deps.Archive.Entries(), nil

	case MethodExtList:
		return b.deps.Registry.List(), nil
	case MethodExtToggle:
		var a struct {
			ID      string `json:"id"`
			Enabled bool   `json:"enabled"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return b.deps.Installer.Toggle(a.ID, a.Enabled), nil
	case MethodExtInstall:
		var a struct {
			Path            string `json:"path"`
			AcceptDangerous bool   `json:"acceptDangerous"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Path == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "install path must be a non-empty string")
		}
		return b.deps.Installer.InstallFromFile(ctx, a.Path, a.AcceptDangerous), nil
	case MethodExtInstallStore:
		var a struct {
			URL             string `json:"url"`
			AcceptDangerous bool   `json:"acceptDangerous"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.URL == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "web store URL must be a non-empty string")
		}
		return b.deps.Installer.InstallFromWebStore(ctx, a.URL, a.AcceptDangerous), nil
	case MethodExtInstallBlob:
		return b.installBlob(ctx, args)
	case MethodExtUninstall:
		var a struct {
			ID string `json:"id"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return b.deps.Installer.Uninstall(a.ID), nil
	case MethodExtUnpin:
		var a struct {
			ID     string `json:"id"`
			Pinned bool   `json:"pinned"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return b.deps.Installer.SetPinned(a.ID, a.Pinned), nil
	case MethodExtUpdateAll:
		return b.deps.Installer.UpdateAll(ctx), nil
	case MethodExtListActions:
		return b.deps.Actions.ListActions(), nil
	case MethodExtClickAction:
		var a struct {
			ID string `json:"id"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return envelope(nil, b.deps.Actions.ClickAction(a.ID)), nil
	case MethodExtOpenPopup:
		var a struct {
			ID     string         `json:"id"`
			Anchor extension.Rect `json:"anchor"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return envelope(nil, b.deps.Actions.OpenPopup(a.ID, a.Anchor)), nil
	case MethodExtRegisterWV, MethodExtUnregisterWV:
		return b.webview(doc, method, args)

	case MethodReadCSS:
		var a struct {
			Name string `json:"name"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		css, err := b.deps.Pages.ReadCSS(a.Name)
		if err != nil {
			if pskyerr.IsInvalidInput(err) {
				return nil, err
			}
			return envelope(nil, err), nil
		}
		return css, nil

	case MethodGetBookmarks:
		list, err := b.deps.Bookmarks.List(ctx)
		return envelope(list, err), nil
	case MethodAddBookmark:
		var a struct {
			URL     string `json:"url"`
			Title   string `json:"title"`
			Favicon string `json:"favicon"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.URL == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "bookmark url must be a non-empty string")
		}
		bm := &store.Bookmark{URL: a.URL, Title: a.Title, Favicon: a.Favicon}
		return envelope(bm, b.deps.Bookmarks.Add(ctx, bm)), nil
	case MethodDeleteBookmark:
		var a struct {
			URL string `json:"url"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.URL == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "bookmark url must be a non-empty string")
		}
		return envelope(nil, b.deps.Bookmarks.Delete(ctx, a.URL)), nil

	case MethodTabsInvoke:
		var a struct {
			Op   string          `json:"op"`
			Args json.RawMessage `json:"args"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Op == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "tab operation must be a non-empty string")
		}
		if b.deps.Tabs == nil {
			return envelope(nil, pskyerr.New(pskyerr.CodeServerInternalFailure, "no tab controller attached")), nil
		}
		value, err := b.deps.Tabs.Invoke(ctx, a.Op, a.Args)
		return envelope(value, err), nil

	case MethodLLMChat:
		var a struct {
			Messages []ChatMessage `json:"messages"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if len(a.Messages) == 0 {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "chat needs at least one message")
		}
		if b.deps.LLM == nil {
			return envelope(nil, errNoLLM()), nil
		}
		reply, err := b.deps.LLM.Chat(ctx, a.Messages)
		return envelope(reply, err), nil
	case MethodLLMComplete:
		var a struct {
			Prompt string `json:"prompt"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Prompt == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "prompt must be a non-empty string")
		}
		if b.deps.LLM == nil {
			return envelope(nil, errNoLLM()), nil
		}
		reply, err := b.deps.LLM.Complete(ctx, a.Prompt)
		return envelope(reply, err), nil
	case MethodLLMStream:
		var a struct {
			Prompt string `json:"prompt"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Prompt == "" {
			return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "prompt must be a non-empty string")
		}
		if b.deps.LLM == nil {
			return envelope(nil, errNoLLM()), nil
		}
		it, err := b.deps.LLM.Stream(ctx, a.Prompt)
		if err != nil {
			return envelope(nil, err), nil
		}
		return doc.iterators.add(it), nil
	case MethodLLMNext:
		var a struct {
			Handle int `json:"handle"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		step, err := doc.iterators.step(ctx, a.Handle)
		if err != nil {
			if pskyerr.HasCode(err, pskyerr.CodeBridgeIteratorExpired) {
				return nil, err
			}
			return envelope(nil, err), nil
		}
		return step, nil
	case MethodLLMReturn:
		var a struct {
			Handle int `json:"handle"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		doc.iterators.release(a.Handle)
		return envelope(nil, nil), nil
	}

	return nil, pskyerr.Errorf(pskyerr.CodeBridgeMethodUndefined, "unhandled method %q", method)
}

func (b *Bridge) settingsGet(doc *Document, args json.RawMessage) (any, error) {
	var a struct {
		Key string `json:"key"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "setting keys must be non-empty strings")
	}

	if allow, restricted := settingsGetAllow[doc.Class]; restricted {
		permitted := false
		for _, key := range allow {
			if key == a.Key {
				permitted = true
				break
			}
		}
		if !permitted {
			return nil, pskyerr.Errorf(pskyerr.CodeSettingsKeyDenied,
				"Access denied: %s pages can only access: %s",
				classLabel[doc.Class], strings.Join(allow, ", "))
		}
	}
	return b.deps.Settings.Get(a.Key)
}

func (b *Bridge) settingsSet(args json.RawMessage) (any, error) {
	var a struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "setting keys must be non-empty strings")
	}

	if err := b.deps.Settings.Set(a.Key, a.Value); err != nil {
		if pskyerr.IsIO(err) {
			return envelope(nil, err), nil
		}
		return nil, err
	}
	return envelope(nil, nil), nil
}

func (b *Bridge) uploadWallpaper(args json.RawMessage) (any, error) {
	var a struct {
		Name string `json:"name"`
		Data []byte `json:"data"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "wallpaper name must be a non-empty string")
	}
	dest, err := b.deps.Settings.UploadWallpaper(a.Name, a.Data)
	return envelope(dest, err), nil
}

func (b *Bridge) installBlob(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		Name            string `json:"name"`
		Data            []byte `json:"data"`
		AcceptDangerous bool   `json:"acceptDangerous"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "upload name must be a non-empty string")
	}
	if len(a.Data) == 0 || int64(len(a.Data)) > extension.MaxPackageBytes {
		return nil, pskyerr.Errorf(pskyerr.CodeBridgeArgumentInvalid,
			"upload must be between 1 byte and %d bytes, got %d", extension.MaxPackageBytes, len(a.Data))
	}
	return b.deps.Installer.InstallFromBlob(ctx, a.Name, a.Data, a.AcceptDangerous), nil
}

func (b *Bridge) webview(doc *Document, method string, args json.RawMessage) (any, error) {
	var a struct {
		Name string `json:"name"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		return nil, pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "webview name must be a non-empty string")
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if method == MethodExtRegisterWV {
		doc.webviews[a.Name] = true
	} else {
		delete(doc.webviews, a.Name)
	}
	return envelope(nil, nil), nil
}

// Webviews lists the webview names the document registered, for popup
// anchoring.
func (d *Document) Webviews() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.webviews))
	for name := range d.webviews {
		out = append(out, name)
	}
	return out
}

// decodeArgs strictly unmarshals args into v. Unknown fields and type
// mismatches are programming errors.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(args)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeBridgeArgumentInvalid, "malformed arguments")
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "extension id must be a non-empty string")
	}
	return nil
}

func errNoLLM() error {
	return pskyerr.New(pskyerr.CodeProviderNotFound, "no language model provider configured")
}
