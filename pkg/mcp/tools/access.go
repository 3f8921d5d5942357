// Package tools provides MCP tool implementations for schemadoc-engine.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ToolAccessError is an actionable error returned to the MCP client as a
// JSON tool result rather than a protocol error, so the caller can fix the
// arguments and retry.
type ToolAccessError struct {
	Code    string
	Message string
	// MCPResult contains the pre-built MCP response for this error
	MCPResult *mcp.CallToolResult
}

func (e *ToolAccessError) Error() string {
	return e.Message
}

// AsToolAccessResult returns the prepared tool result when err is a
// ToolAccessError, or nil otherwise.
//
//	projectID, ctx, cleanup, err := acquireProjectScope(ctx, deps, req)
//	if err != nil {
//	    if result := AsToolAccessResult(err); result != nil {
//	        return result, nil
//	    }
//	    return nil, err
//	}
func AsToolAccessResult(err error) *mcp.CallToolResult {
	var accessErr *ToolAccessError
	if errors.As(err, &accessErr) {
		return accessErr.MCPResult
	}
	return nil
}

func newToolAccessError(code, message string) *ToolAccessError {
	return &ToolAccessError{
		Code:      code,
		Message:   message,
		MCPResult: NewErrorResult(code, message),
	}
}

// ProjectScoper opens a tenant-scoped context for a project.
// database.TenantScopeProvider satisfies it.
type ProjectScoper interface {
	WithTenantScope(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error)
}

// ToolAccessDeps defines the dependencies every project-scoped tool needs.
type ToolAccessDeps interface {
	GetScoper() ProjectScoper
	GetLogger() *zap.Logger
}

// acquireProjectScope reads the required project_id argument and opens a
// tenant scope for it. Malformed IDs come back as ToolAccessError; failing
// to acquire a connection is a system error.
func acquireProjectScope(ctx context.Context, deps ToolAccessDeps, req mcp.CallToolRequest) (uuid.UUID, context.Context, func(), error) {
	raw := strings.TrimSpace(getOptionalString(req, "project_id"))
	if raw == "" {
		return uuid.Nil, nil, nil, newToolAccessError("invalid_parameters", "parameter 'project_id' is required")
	}

	projectID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, nil, newToolAccessError("invalid_project_id", fmt.Sprintf("invalid project ID: %v", err))
	}

	tenantCtx, cleanup, err := deps.GetScoper().WithTenantScope(ctx, projectID)
	if err != nil {
		deps.GetLogger().Error("Failed to acquire tenant scope",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		return uuid.Nil, nil, nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}

	return projectID, tenantCtx, cleanup, nil
}
