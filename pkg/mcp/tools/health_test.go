package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemadoc/schemadoc-engine/pkg/services/logicalfk"
)

func TestHealthTool(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{name: "release version", version: "1.2.3"},
		{name: "version with quotes survives encoding", version: `1.0.0-beta"test`},
		{name: "dev build", version: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
			RegisterHealthTool(s, tt.version)

			resp := callTool(t, s, "health", nil)
			require.Nil(t, resp.Error)
			require.NotNil(t, resp.Result)
			require.False(t, resp.Result.IsError)
			require.Len(t, resp.Result.Content, 1)

			var got healthResult
			require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
			assert.Equal(t, healthResult{
				Status:           "ok",
				Version:          tt.version,
				AlgorithmVersion: logicalfk.AlgorithmVersion,
			}, got)
		})
	}
}
