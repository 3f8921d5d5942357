package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
	"github.com/schemadoc/schemadoc-engine/pkg/services"
)

// LogicalFKToolDeps contains dependencies for logical FK MCP tools.
type LogicalFKToolDeps struct {
	Scoper  ProjectScoper
	Service services.LogicalFKService
	Logger  *zap.Logger
}

// GetScoper implements ToolAccessDeps.
func (d *LogicalFKToolDeps) GetScoper() ProjectScoper { return d.Scoper }

// GetLogger implements ToolAccessDeps.
func (d *LogicalFKToolDeps) GetLogger() *zap.Logger { return d.Logger }

// RegisterLogicalFKTools registers the logical FK MCP tools.
func RegisterLogicalFKTools(s *server.MCPServer, deps *LogicalFKToolDeps) {
	registerDetectLogicalFKCandidatesTool(s, deps)
	registerListLogicalFKsTool(s, deps)
}

func registerDetectLogicalFKCandidatesTool(s *server.MCPServer, deps *LogicalFKToolDeps) {
	tool := mcp.NewTool(
		"detect_logical_fk_candidates",
		mcp.WithDescription(
			"Detect undeclared foreign key relationships in a project's schema without saving them. "+
				"Candidates come from column naming conventions and from JOIN conditions in stored procedures, "+
				"ranked by confidence. Relationships already recorded (suggested, confirmed or rejected) and "+
				"declared foreign keys are excluded. Check sp_analysis.status: 'degraded' means procedure "+
				"analysis failed and only naming evidence was used.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID. Required."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, tenantCtx, cleanup, err := acquireProjectScope(ctx, deps, req)
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		result, err := deps.Service.DetectCandidates(tenantCtx, projectID)
		if err != nil {
			if toolErr := NewServiceErrorResult(err); toolErr != nil {
				deps.Logger.Debug("detect_logical_fk_candidates rejected",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
				return toolErr, nil
			}
			deps.Logger.Error("detect_logical_fk_candidates failed",
				zap.String("project_id", projectID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("detection failed: %w", err)
		}

		return jsonResult(result)
	})
}

type listLogicalFKsResult struct {
	LogicalFKs []*models.LogicalForeignKey `json:"logical_fks"`
	Count      int                         `json:"count"`
}

func registerListLogicalFKsTool(s *server.MCPServer, deps *LogicalFKToolDeps) {
	tool := mcp.NewTool(
		"list_logical_fks",
		mcp.WithDescription(
			"List recorded logical foreign keys for a project, highest confidence first. "+
				"Optionally filter by status: SUGGESTED, CONFIRMED or REJECTED.",
		),
		mcp.WithString(
			"project_id",
			mcp.Required(),
			mcp.Description("Project UUID. Required."),
		),
		mcp.WithString(
			"status",
			mcp.Description("Optional - Only return logical FKs with this status"),
			mcp.Enum(
				string(models.LogicalFKStatusSuggested),
				string(models.LogicalFKStatusConfirmed),
				string(models.LogicalFKStatusRejected),
			),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var status *models.LogicalFKStatus
		if raw := strings.TrimSpace(getOptionalString(req, "status")); raw != "" {
			parsed, ok := models.ParseLogicalFKStatus(raw)
			if !ok {
				return NewErrorResultWithDetails(
					"invalid_parameters",
					fmt.Sprintf("invalid status value: %q", raw),
					map[string]any{
						"parameter": "status",
						"expected": []string{
							string(models.LogicalFKStatusSuggested),
							string(models.LogicalFKStatusConfirmed),
							string(models.LogicalFKStatusRejected),
						},
						"actual": raw,
					},
				), nil
			}
			status = &parsed
		}

		projectID, tenantCtx, cleanup, err := acquireProjectScope(ctx, deps, req)
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}
		defer cleanup()

		fks, err := deps.Service.List(tenantCtx, projectID, status)
		if err != nil {
			deps.Logger.Error("list_logical_fks failed",
				zap.String("project_id", projectID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to list logical foreign keys: %w", err)
		}
		if fks == nil {
			fks = []*models.LogicalForeignKey{}
		}

		return jsonResult(listLogicalFKsResult{LogicalFKs: fks, Count: len(fks)})
	})
}
