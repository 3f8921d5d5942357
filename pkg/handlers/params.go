package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Path values used by logical FK routes.
const (
	pathProjectID   = "pid"
	pathLogicalFKID = "id"
)

// ParseProjectID reads the {pid} path value. On failure it writes a 400
// response and returns false; callers should return immediately.
func ParseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parsePathUUID(w, r, pathProjectID, "invalid_project_id", "Invalid project ID format", logger)
}

// ParseLogicalFKID reads the {id} path value.
func ParseLogicalFKID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parsePathUUID(w, r, pathLogicalFKID, "invalid_logical_fk_id", "Invalid logical foreign key ID format", logger)
}

// ParseProjectAndLogicalFKIDs reads {pid} then {id}. Only the first failure is reported.
func ParseProjectAndLogicalFKIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (projectID, id uuid.UUID, ok bool) {
	if projectID, ok = ParseProjectID(w, r, logger); !ok {
		return uuid.Nil, uuid.Nil, false
	}
	if id, ok = ParseLogicalFKID(w, r, logger); !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, id, true
}

func parsePathUUID(w http.ResponseWriter, r *http.Request, name, errorCode, message string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err == nil {
		return id, true
	}
	if werr := ErrorResponse(w, http.StatusBadRequest, errorCode, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
	return uuid.Nil, false
}
