package models

import (
	"time"

	"github.com/google/uuid"
)

// StrainProfile is a user-curated strain with its reference images and embeddings.
// ImageRefs and Embeddings are parallel lists: Embeddings[i] was computed from
// ImageRefs[i], so len(ImageRefs) == len(Embeddings) always holds.
type StrainProfile struct {
	ID         uuid.UUID   `json:"id"`
	OwnerID    string      `json:"owner_id"`
	Name       string      `json:"name"`
	TypeTag    *string     `json:"type_tag,omitempty"` // e.g. "Indica", "Sativa", "Hybrid"
	Notes      *string     `json:"notes,omitempty"`
	ImageRefs  []string    `json:"image_refs"`
	Embeddings [][]float32 `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ReferenceCount returns the number of reference embeddings for this strain.
func (p *StrainProfile) ReferenceCount() int {
	return len(p.Embeddings)
}

// CreateStrainRequest is the request to create a strain profile.
type CreateStrainRequest struct {
	OwnerID string  `json:"owner_id" validate:"required"`
	Name    string  `json:"name"     validate:"required"`
	TypeTag *string `json:"type_tag,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// AddReferenceRequest is the request to append one reference image to a strain.
// The embedding is computed server-side from the image.
type AddReferenceRequest struct {
	ImageRef string `json:"image_ref" validate:"required"`
}

// ListStrainsResponse is the response for listing strain profiles.
type ListStrainsResponse struct {
	Data   []StrainProfile `json:"data"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
