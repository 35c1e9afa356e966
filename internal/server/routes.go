// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/peersky-browser/peersky/internal/bridge"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "register-document",
		Method:      http.MethodPost,
		Path:        "/api/v1/documents",
		Summary:     "Register a rendering context",
		Description: "Classifies the document URL and returns the handle used for bridge calls.",
		Tags:        []string{"documents"},
	}, s.handleRegisterDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "close-document",
		Method:      http.MethodDelete,
		Path:        "/api/v1/documents/{id}",
		Summary:     "Close a rendering context",
		Tags:        []string{"documents"},
	}, s.handleCloseDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "invoke",
		Method:      http.MethodPost,
		Path:        "/api/v1/documents/{id}/invoke",
		Summary:     "Invoke a bridge method",
		Description: "Dispatches a privileged method for the document's context class.",
		Tags:        []string{"bridge"},
	}, s.handleInvoke)

	huma.Register(s.api, huma.Operation{
		OperationID: "daemon-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Daemon status",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

// --- Request/Response types for huma ---

type registerDocumentInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Document URL"`
	}
}
type registerDocumentOutput struct {
	Body struct {
		ID    string `json:"id" doc:"Document handle"`
		URL   string `json:"url" doc:"Document URL"`
		Class string `json:"class" doc:"Context class"`
	}
}

type documentIDInput struct {
	ID string `path:"id"`
}

type closeDocumentOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type invokeInput struct {
	ID   string `path:"id"`
	Body struct {
		Method string          `json:"method" minLength:"1" doc:"Bridge method name"`
		Args   json.RawMessage `json:"args,omitempty" doc:"Method arguments"`
	}
}
type invokeOutput struct {
	Body struct {
		Result any `json:"result" doc:"Method result, usually an operational envelope"`
	}
}

type statusOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Daemon status"`
	}
}

// --- Handlers ---

func (s *Server) handleRegisterDocument(_ context.Context, input *registerDocumentInput) (*registerDocumentOutput, error) {
	doc := s.deps.Bridge.RegisterDocument(input.Body.URL)
	out := &registerDocumentOutput{}
	out.Body.ID = doc.ID
	out.Body.URL = doc.URL
	out.Body.Class = string(doc.Class)
	return out, nil
}

func (s *Server) handleCloseDocument(_ context.Context, input *documentIDInput) (*closeDocumentOutput, error) {
	s.deps.Bridge.CloseDocument(input.ID)
	out := &closeDocumentOutput{}
	out.Body.Status = "closed"
	return out, nil
}

func (s *Server) handleInvoke(ctx context.Context, input *invokeInput) (*invokeOutput, error) {
	result, err := s.deps.Bridge.Invoke(ctx, input.ID, input.Body.Method, input.Body.Args)
	if err != nil {
		return nil, bridgeError(err)
	}
	out := &invokeOutput{}
	out.Body.Result = result
	return out, nil
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// bridgeError converts a thrown bridge error into the huma error model,
// keeping the machine-readable code and kind as error details.
func bridgeError(err error) error {
	return huma.NewError(pskyerr.HTTPStatus(err), err.Error(),
		&huma.ErrorDetail{Location: "code", Message: string(pskyerr.CodeOf(err))},
		&huma.ErrorDetail{Location: "kind", Message: string(pskyerr.KindOf(err))},
	)
}

// interface satisfaction check for the production bridge
var _ DocumentBridge = (*bridge.Bridge)(nil)
