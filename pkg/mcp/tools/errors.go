package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/schemadoc/schemadoc-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Errors the caller can act on are returned as a successful tool call whose
// text is this JSON, so the client sees the details instead of a bare
// protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable errors (invalid parameters, unknown project).
// System failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
//	return NewErrorResultWithDetails(
//	    "invalid_parameters",
//	    "invalid status filter",
//	    map[string]any{"expected": []string{"SUGGESTED", "CONFIRMED", "REJECTED"}},
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewServiceErrorResult converts a service error the caller can act on into a
// tool result. Returns nil for system errors; the caller should return those
// as Go errors.
func NewServiceErrorResult(err error) *mcp.CallToolResult {
	var validationErr *apperrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return NewErrorResult("validation_error", validationErr.Message)
	case errors.Is(err, apperrors.ErrValidation):
		return NewErrorResult("validation_error", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error())
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return NewErrorResult("invalid_transition", err.Error())
	}
	return nil
}

// IsInputError reports whether err was caused by caller input rather than a
// server failure. Input errors are logged at DEBUG.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrInvalidTransition) ||
		AsToolAccessResult(err) != nil
}
