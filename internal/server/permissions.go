// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/peersky-browser/peersky/internal/permission"
)

// The shell runs the permission dialog itself: it first checks for a
// cached decision, shows the prompt on a miss, then posts the answer
// back so the oracle records it.
func (s *Server) registerPermissionRoutes() {
	if s.deps.Permissions == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "check-permission",
		Method:      http.MethodPost,
		Path:        "/api/v1/permissions/check",
		Summary:     "Look up a cached permission decision",
		Tags:        []string{"permissions"},
	}, s.handleCheckPermission)

	huma.Register(s.api, huma.Operation{
		OperationID: "decide-permission",
		Method:      http.MethodPost,
		Path:        "/api/v1/permissions/decide",
		Summary:     "Record a prompt answer",
		Tags:        []string{"permissions"},
	}, s.handleDecidePermission)
}

type checkPermissionInput struct {
	Body struct {
		Origin     string `json:"origin" doc:"Document URL or origin"`
		Permission string `json:"permission" minLength:"1" doc:"Requested permission name"`
	}
}
type checkPermissionOutput struct {
	Body struct {
		Promptable bool `json:"promptable" doc:"Whether the permission is in the prompt set"`
		Decided    bool `json:"decided" doc:"Whether a cached decision exists"`
		Allowed    bool `json:"allowed" doc:"Cached decision, meaningful only when decided"`
	}
}

type decidePermissionInput struct {
	Body struct {
		Origin     string `json:"origin" doc:"Document URL or origin"`
		Permission string `json:"permission" minLength:"1" doc:"Requested permission name"`
		Result     string `json:"result" doc:"Prompt outcome: allow-always, allow-once, or block"`
	}
}
type decidePermissionOutput struct {
	Body struct {
		Allowed bool `json:"allowed" doc:"Resulting decision"`
	}
}

func (s *Server) handleCheckPermission(_ context.Context, input *checkPermissionInput) (*checkPermissionOutput, error) {
	out := &checkPermissionOutput{}
	out.Body.Promptable = permission.IsPromptable(input.Body.Permission)
	if !out.Body.Promptable {
		out.Body.Decided = true
		return out, nil
	}
	out.Body.Allowed, out.Body.Decided = s.deps.Permissions.Cached(input.Body.Origin, input.Body.Permission)
	return out, nil
}

func (s *Server) handleDecidePermission(_ context.Context, input *decidePermissionInput) (*decidePermissionOutput, error) {
	var result permission.PromptResult
	switch input.Body.Result {
	case "allow-always":
		result = permission.ResultAllowAlways
	case "allow-once":
		result = permission.ResultAllowOnce
	case "block":
		result = permission.ResultBlock
	default:
		return nil, huma.Error400BadRequest("unknown prompt result")
	}

	out := &decidePermissionOutput{}
	out.Body.Allowed = s.deps.Permissions.Decide(input.Body.Origin, input.Body.Permission, result)
	return out, nil
}
