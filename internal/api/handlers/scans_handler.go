// Package handlers contains the HTTP handlers for the API server.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/strainlens/hub/internal/api/response"
	"github.com/strainlens/hub/internal/api/validation"
	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
)

// ScansService defines the interface for scan business logic.
type ScansService interface {
	CreateScan(ctx context.Context, req models.CreateScanRequest) (*models.ScanRecord, error)
	GetScan(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error)
	ListScans(ctx context.Context, filters models.ListScansFilters) (*models.ListScansResponse, error)
	ScanCount(ctx context.Context, ownerID string) (int64, error)
}

// ScansHandler handles HTTP requests for scan records.
type ScansHandler struct {
	service ScansService
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(service ScansService) *ScansHandler {
	return &ScansHandler{service: service}
}

// Create handles POST /v1/scans
// @Summary Upload a scan
// @Description Creates a pending scan record and queues the identification pipeline
// @Tags Scans
// @Accept json
// @Produce json
// @Param request body CreateScanRequest true "Scan to create"
// @Success 202 {object} ScanRecord
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Security BearerAuth
// @Router /v1/scans [post]
func (h *ScansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateScanRequest
	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		response.RespondBadRequest(w, err.Error())
		return
	}

	scan, err := h.service.CreateScan(r.Context(), req)
	if err != nil {
		if errors.Is(err, scanerrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}

		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	// Processing is async; the record comes back pending.
	response.RespondJSON(w, http.StatusAccepted, scan)
}

// Get handles GET /v1/scans/{id}
// @Summary Get a scan by ID
// @Description Retrieves one scan record with its current stage and results
// @Tags Scans
// @Produce json
// @Param id path string true "Scan ID (UUID)"
// @Success 200 {object} ScanRecord
// @Failure 400 {object} ProblemDetails "Invalid UUID format"
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Failure 404 {object} ProblemDetails "Scan not found"
// @Security BearerAuth
// @Router /v1/scans/{id} [get]
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return
	}

	scan, err := h.service.GetScan(r.Context(), id)
	if err != nil {
		if errors.Is(err, scanerrors.ErrNotFound) {
			response.RespondNotFound(w, "Scan not found")
			return
		}

		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	response.RespondJSON(w, http.StatusOK, scan)
}

// List handles GET /v1/scans
// @Summary List scans
// @Description Lists scan records with optional filters and pagination, newest first
// @Tags Scans
// @Produce json
// @Param owner_id query string false "Filter by owner"
// @Param stage query string false "Filter by stage (pending|processing|matching|done|error)"
// @Param limit query int false "Number of results to return (max 1000)"
// @Param offset query int false "Number of results to skip"
// @Success 200 {object} ListScansResponse
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Security BearerAuth
// @Router /v1/scans [get]
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	var filters models.ListScansFilters
	if err := validation.DecodeAndValidateQuery(r.URL.Query(), &filters); err != nil {
		response.RespondBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.ListScans(r.Context(), filters)
	if err != nil {
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// scanCountResponse is the body for the scan-count endpoint.
type scanCountResponse struct {
	OwnerID   string `json:"owner_id"`
	ScanCount int64  `json:"scan_count"`
}

// Count handles GET /v1/scans/count
// @Summary Count an owner's scans
// @Description Returns how many scans an owner has created
// @Tags Scans
// @Produce json
// @Param owner_id query string true "Owner ID"
// @Success 200 {object} scanCountResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Security BearerAuth
// @Router /v1/scans/count [get]
func (h *ScansHandler) Count(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")

	count, err := h.service.ScanCount(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, scanerrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}

		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	response.RespondJSON(w, http.StatusOK, scanCountResponse{OwnerID: ownerID, ScanCount: count})
}
