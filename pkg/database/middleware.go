package database

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WithTenantContext returns middleware that binds each request to the project
// named by its {pid} path value. Handlers run with a project-scoped connection
// in the request context; the connection is released when they return.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	provider := NewTenantScopeProvider(db)
	logger = logger.Named("tenant")

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw := r.PathValue("pid")
			if raw == "" {
				logger.Error("Route has no {pid} path value", zap.String("path", r.URL.Path))
				writeError(w, http.StatusBadRequest, "missing_project_id", "Project ID is required")
				return
			}

			projectID, err := uuid.Parse(raw)
			if err != nil {
				logger.Debug("Invalid project ID format", zap.String("project_id", raw))
				writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
				return
			}

			ctx, release, err := provider.WithTenantScope(r.Context(), projectID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.String("project_id", projectID.String()),
					zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "database_unavailable", "Database connection error")
				return
			}
			defer release()

			next(w, r.WithContext(ctx))
		}
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
