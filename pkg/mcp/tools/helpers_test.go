package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOptionalString(t *testing.T) {
	tests := []struct {
		name string
		args any
		want string
	}{
		{"present", map[string]any{"status": "SUGGESTED"}, "SUGGESTED"},
		{"missing", map[string]any{}, ""},
		{"wrong type", map[string]any{"status": 3}, ""},
		{"no arguments", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcp.CallToolRequest
			req.Params.Arguments = tt.args
			assert.Equal(t, tt.want, getOptionalString(req, "status"))
		})
	}
}

func TestJSONResult(t *testing.T) {
	result, err := jsonResult(map[string]int{"count": 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, getTextContent(t, result))

	_, err = jsonResult(make(chan int))
	assert.Error(t, err)
}
