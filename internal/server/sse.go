// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/peersky-browser/peersky/internal/extension"
	"github.com/peersky-browser/peersky/internal/settings"
)

// SSEEvent is one event on the shell stream.
type SSEEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

func (s *Server) registerEventsRoute() {
	s.router.Get("/api/v1/events", s.handleEvents)

	// SSE needs raw http.ResponseWriter access, so the stream cannot use
	// huma's handler signature. The chi route above serves requests and
	// this operation entry documents it.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "Subscribe to daemon events",
		Description: "Streams extension lifecycle and settings change events as server-sent events until the client disconnects.",
		Tags:        []string{"events"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Server-sent event stream",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Events named after their bus type with a JSON payload",
						},
					},
				},
			},
		},
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	var extCh <-chan extension.Event
	if s.deps.ExtensionEvents != nil {
		ch, cancel := s.deps.ExtensionEvents.Subscribe()
		defer cancel()
		extCh = ch
	}
	var setCh <-chan settings.Event
	if s.deps.SettingsEvents != nil {
		ch, cancel := s.deps.SettingsEvents.Subscribe()
		defer cancel()
		setCh = ch
	}

	writeEvent(w, flusher, SSEEvent{Event: "ready", Data: "{}"})

	for {
		select {
		case ev, ok := <-extCh:
			if !ok {
				extCh = nil
				continue
			}
			writeEvent(w, flusher, marshalEvent(wireEventName(ev.Type), ev))
		case ev, ok := <-setCh:
			if !ok {
				setCh = nil
				continue
			}
			writeEvent(w, flusher, marshalEvent(string(ev.Type), ev))
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}

// wireEventName translates extension bus event types into the stable
// names shell subscribers key on. Lifecycle events collapse into the
// installed/uninstalled/toggled/changed vocabulary; action events pass
// through unchanged.
func wireEventName(t extension.EventType) string {
	switch t {
	case extension.EventInstalled:
		return "extension-installed"
	case extension.EventUninstalled:
		return "extension-uninstalled"
	case extension.EventEnabled, extension.EventDisabled:
		return "extension-toggled"
	case extension.EventUpdated, extension.EventPinned, extension.EventUnpinned:
		return "extension-changed"
	default:
		return string(t)
	}
}

func marshalEvent(name string, payload any) SSEEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		return SSEEvent{Event: name, Data: "{}"}
	}
	return SSEEvent{Event: name, Data: string(data)}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev SSEEvent) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, ev.Data)
	if flusher != nil {
		flusher.Flush()
	}
}
