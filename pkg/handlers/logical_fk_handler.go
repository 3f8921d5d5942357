package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
	"github.com/schemadoc/schemadoc-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// LogicalFKListResponse for GET /api/logical-fks/{pid}
type LogicalFKListResponse struct {
	LogicalFKs []*models.LogicalForeignKey `json:"logical_fks"`
	Total      int                         `json:"total"`
}

// ConfirmLogicalFKRequest for PUT /api/logical-fks/{pid}/{id}/confirm
type ConfirmLogicalFKRequest struct {
	ConfirmedBy string `json:"confirmed_by"`
}

// ============================================================================
// Handler
// ============================================================================

// LogicalFKHandler handles logical foreign key HTTP requests.
type LogicalFKHandler struct {
	logicalFKService services.LogicalFKService
	logger           *zap.Logger
}

// NewLogicalFKHandler creates a new logical FK handler.
func NewLogicalFKHandler(logicalFKService services.LogicalFKService, logger *zap.Logger) *LogicalFKHandler {
	return &LogicalFKHandler{
		logicalFKService: logicalFKService,
		logger:           logger.Named("logical-fk-handler"),
	}
}

// RegisterRoutes registers the logical FK handler's routes on the given mux.
func (h *LogicalFKHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/logical-fks/{pid}"

	mux.HandleFunc("GET "+base+"/detect-candidates", tenantMiddleware(h.DetectCandidates))
	mux.HandleFunc("POST "+base+"/detect", tenantMiddleware(h.Detect))
	mux.HandleFunc("GET "+base+"/staleness", tenantMiddleware(h.Staleness))
	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base, tenantMiddleware(h.Create))
	mux.HandleFunc("GET "+base+"/{id}", tenantMiddleware(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}/confirm", tenantMiddleware(h.Confirm))
	mux.HandleFunc("PUT "+base+"/{id}/reject", tenantMiddleware(h.Reject))
	mux.HandleFunc("DELETE "+base+"/{id}", tenantMiddleware(h.Delete))
}

// DetectCandidates handles GET /api/logical-fks/{pid}/detect-candidates
// Runs detection without persisting anything.
func (h *LogicalFKHandler) DetectCandidates(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.logicalFKService.DetectCandidates(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "detect_candidates_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Detect handles POST /api/logical-fks/{pid}/detect
func (h *LogicalFKHandler) Detect(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.logicalFKService.DetectAndPersistCandidates(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "detect_and_persist_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Staleness handles GET /api/logical-fks/{pid}/staleness
func (h *LogicalFKHandler) Staleness(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	staleness, err := h.logicalFKService.GetStaleness(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_staleness_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: staleness}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/logical-fks/{pid}?status=SUGGESTED
func (h *LogicalFKHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var status *models.LogicalFKStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, valid := models.ParseLogicalFKStatus(raw)
		if !valid {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_status",
				"status must be SUGGESTED, CONFIRMED or REJECTED"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		status = &parsed
	}

	fks, err := h.logicalFKService.List(r.Context(), projectID, status)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_logical_fks_failed")
		return
	}
	if fks == nil {
		fks = []*models.LogicalForeignKey{}
	}

	response := LogicalFKListResponse{LogicalFKs: fks, Total: len(fks)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/logical-fks/{pid}
func (h *LogicalFKHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req models.CreateLogicalFKRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	fk, err := h.logicalFKService.CreateManual(r.Context(), projectID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "create_logical_fk_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: fk}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/logical-fks/{pid}/{id}
func (h *LogicalFKHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, id, ok := ParseProjectAndLogicalFKIDs(w, r, h.logger)
	if !ok {
		return
	}

	fk, err := h.logicalFKService.Get(r.Context(), projectID, id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_logical_fk_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: fk}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Confirm handles PUT /api/logical-fks/{pid}/{id}/confirm
// The body is optional.
func (h *LogicalFKHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	projectID, id, ok := ParseProjectAndLogicalFKIDs(w, r, h.logger)
	if !ok {
		return
	}

	var req ConfirmLogicalFKRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	fk, err := h.logicalFKService.Confirm(r.Context(), projectID, id, req.ConfirmedBy)
	if err != nil {
		writeServiceError(w, h.logger, err, "confirm_logical_fk_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: fk}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reject handles PUT /api/logical-fks/{pid}/{id}/reject
func (h *LogicalFKHandler) Reject(w http.ResponseWriter, r *http.Request) {
	projectID, id, ok := ParseProjectAndLogicalFKIDs(w, r, h.logger)
	if !ok {
		return
	}

	fk, err := h.logicalFKService.Reject(r.Context(), projectID, id)
	if err != nil {
		writeServiceError(w, h.logger, err, "reject_logical_fk_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: fk}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/logical-fks/{pid}/{id}
func (h *LogicalFKHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, id, ok := ParseProjectAndLogicalFKIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.logicalFKService.Delete(r.Context(), projectID, id); err != nil {
		writeServiceError(w, h.logger, err, "delete_logical_fk_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Logical foreign key deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
