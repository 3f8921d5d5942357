package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedArgLen bounds string argument values in MCP logs.
const maxLoggedArgLen = 200

// MCPRequestLogger returns middleware that logs one entry per MCP JSON-RPC call
// with the tool name, project, sanitized arguments and outcome.
// Protocol errors and tool results flagged isError are both reported.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				// Batches and GET streams are passed through unlogged.
				next.ServeHTTP(w, r)
				return
			}

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.String("method", rpcReq.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if rpcReq.Params.Name != "" {
				fields = append(fields, zap.String("tool", rpcReq.Params.Name))
			}
			if pid, ok := rpcReq.Params.Arguments["project_id"].(string); ok {
				fields = append(fields, zap.String("project_id", pid))
			}
			if args := sanitizeArguments(rpcReq.Params.Arguments); args != nil {
				fields = append(fields, zap.Any("arguments", args))
			}

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(extractJSONPayload(recorder.body.Bytes()), &rpcResp); err != nil {
				logger.Debug("MCP call", fields...)
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Debug("MCP call failed", append(fields,
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message))...)
			case rpcResp.Result.IsError:
				logger.Debug("MCP tool returned error", fields...)
			default:
				logger.Debug("MCP call", fields...)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder tees the response body for inspection.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// extractJSONPayload returns the JSON body of a plain or single-event SSE response.
func extractJSONPayload(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' {
		return trimmed
	}
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		if data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data:")); ok {
			return bytes.TrimSpace(data)
		}
	}
	return trimmed
}

var sensitiveArgKeywords = []string{"password", "secret", "token", "key", "credential"}

// sanitizeArguments redacts credential-like fields and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		redacted := false
		for _, keyword := range sensitiveArgKeywords {
			if strings.Contains(lowerKey, keyword) {
				redacted = true
				break
			}
		}
		if redacted {
			result[k] = "[REDACTED]"
			continue
		}

		if str, ok := v.(string); ok && len(str) > maxLoggedArgLen {
			result[k] = str[:maxLoggedArgLen] + "..."
		} else {
			result[k] = v
		}
	}
	return result
}
