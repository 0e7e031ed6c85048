package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/strainlens/hub/internal/api/response"
	"github.com/strainlens/hub/internal/api/validation"
	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
)

// StrainsService defines the interface for strain-profile business logic.
type StrainsService interface {
	CreateStrain(ctx context.Context, req models.CreateStrainRequest) (*models.StrainProfile, error)
	GetStrain(ctx context.Context, strainID uuid.UUID) (*models.StrainProfile, error)
	AddReference(ctx context.Context, strainID uuid.UUID, req models.AddReferenceRequest) (*models.StrainProfile, error)
	ListStrains(ctx context.Context, ownerID string, limit, offset int) (*models.ListStrainsResponse, error)
	DeleteStrain(ctx context.Context, strainID uuid.UUID) error
}

// StrainsHandler handles HTTP requests for strain profiles.
type StrainsHandler struct {
	service StrainsService
}

// NewStrainsHandler creates a new strains handler.
func NewStrainsHandler(service StrainsService) *StrainsHandler {
	return &StrainsHandler{service: service}
}

// Create handles POST /v1/strains
// @Summary Create a strain profile
// @Description Creates a strain profile with no reference images yet
// @Tags Strains
// @Accept json
// @Produce json
// @Param request body CreateStrainRequest true "Strain to create"
// @Success 201 {object} StrainProfile
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Failure 409 {object} ProblemDetails "Strain name already exists for this owner"
// @Security BearerAuth
// @Router /v1/strains [post]
func (h *StrainsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStrainRequest
	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		response.RespondBadRequest(w, err.Error())
		return
	}

	profile, err := h.service.CreateStrain(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, scanerrors.ErrValidation):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, scanerrors.ErrConflict):
			response.RespondConflict(w, err.Error())
		default:
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}

		return
	}

	response.RespondJSON(w, http.StatusCreated, profile)
}

// Get handles GET /v1/strains/{id}
// @Summary Get a strain by ID
// @Description Retrieves one strain profile with its reference images
// @Tags Strains
// @Produce json
// @Param id path string true "Strain ID (UUID)"
// @Success 200 {object} StrainProfile
// @Failure 400 {object} ProblemDetails "Invalid UUID format"
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Failure 404 {object} ProblemDetails "Strain not found"
// @Security BearerAuth
// @Router /v1/strains/{id} [get]
func (h *StrainsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return
	}

	profile, err := h.service.GetStrain(r.Context(), id)
	if err != nil {
		if errors.Is(err, scanerrors.ErrNotFound) {
			response.RespondNotFound(w, "Strain not found")
			return
		}

		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	response.RespondJSON(w, http.StatusOK, profile)
}

// AddReference handles POST /v1/strains/{id}/references
// @Summary Add a reference image
// @Description Embeds the image and appends it to the strain's reference set
// @Tags Strains
// @Accept json
// @Produce json
// @Param id path string true "Strain ID (UUID)"
// @Param request body AddReferenceRequest true "Reference image to add"
// @Success 201 {object} StrainProfile
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Failure 404 {object} ProblemDetails "Strain not found"
// @Security BearerAuth
// @Router /v1/strains/{id}/references [post]
func (h *StrainsHandler) AddReference(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return
	}

	var req models.AddReferenceRequest
	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		response.RespondBadRequest(w, err.Error())
		return
	}

	profile, err := h.service.AddReference(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, scanerrors.ErrValidation):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, scanerrors.ErrNotFound):
			response.RespondNotFound(w, "Strain not found")
		default:
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}

		return
	}

	response.RespondJSON(w, http.StatusCreated, profile)
}

// List handles GET /v1/strains
// @Summary List an owner's strains
// @Description Lists strain profiles for an owner with pagination (metadata only)
// @Tags Strains
// @Produce json
// @Param owner_id query string true "Owner ID"
// @Param limit query int false "Number of results to return (max 1000)"
// @Param offset query int false "Number of results to skip"
// @Success 200 {object} ListStrainsResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Security BearerAuth
// @Router /v1/strains [get]
func (h *StrainsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	resp, err := h.service.ListStrains(r.Context(), query.Get("owner_id"), limit, offset)
	if err != nil {
		if errors.Is(err, scanerrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}

		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /v1/strains/{id}
// @Summary Delete a strain
// @Description Removes a strain and all its reference embeddings
// @Tags Strains
// @Param id path string true "Strain ID (UUID)"
// @Success 204 "No Content"
// @Failure 400 {object} ProblemDetails "Invalid UUID format"
// @Failure 401 {object} ProblemDetails "Unauthorized - Invalid or missing API key"
// @Failure 404 {object} ProblemDetails "Strain not found"
// @Security BearerAuth
// @Router /v1/strains/{id} [delete]
func (h *StrainsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return
	}

	if err := h.service.DeleteStrain(r.Context(), id); err != nil {
		if errors.Is(err, scanerrors.ErrNotFound) {
			response.RespondNotFound(w, "Strain not found")
			return
		}

		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
