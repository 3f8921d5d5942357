package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/schemadoc/schemadoc-engine/pkg/services/logicalfk"
)

type healthResult struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	AlgorithmVersion string `json:"algorithm_version"`
}

// RegisterHealthTool adds a health check tool reporting the server version and
// the logical FK detection algorithm version.
func RegisterHealthTool(s *server.MCPServer, version string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and detection algorithm version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(healthResult{
			Status:           "ok",
			Version:          version,
			AlgorithmVersion: logicalfk.AlgorithmVersion,
		})
	})
}
