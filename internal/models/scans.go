package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanStage is the lifecycle stage of a scan record.
type ScanStage string

// Scan stages. Forward-only: pending → processing → matching → done, with
// error reachable from any of the first three. A failed scan is terminal and
// must be retried as a new scan id.
const (
	ScanStagePending    ScanStage = "pending"
	ScanStageProcessing ScanStage = "processing"
	ScanStageMatching   ScanStage = "matching"
	ScanStageDone       ScanStage = "done"
	ScanStageError      ScanStage = "error"
)

// nextStage maps each stage to its only legal successor (besides error).
var nextStage = map[ScanStage]ScanStage{
	ScanStagePending:    ScanStageProcessing,
	ScanStageProcessing: ScanStageMatching,
	ScanStageMatching:   ScanStageDone,
}

// CanAdvanceTo reports whether moving from s to target is a legal forward
// transition. Error is reachable from any non-terminal stage.
func (s ScanStage) CanAdvanceTo(target ScanStage) bool {
	if s == ScanStageDone || s == ScanStageError {
		return false
	}

	if target == ScanStageError {
		return true
	}

	return nextStage[s] == target
}

// Terminal reports whether the stage is terminal (done or error).
func (s ScanStage) Terminal() bool {
	return s == ScanStageDone || s == ScanStageError
}

// MatchCandidate is one ranked strain match for a scan. Ephemeral except as
// part of the owning scan record.
type MatchCandidate struct {
	StrainID       uuid.UUID `json:"strain_id"`
	Name           string    `json:"name"`
	TypeTag        *string   `json:"type_tag,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	Score          float64   `json:"score"`
	// VisualScore is the raw cosine against the pooled reference embedding,
	// untouched by the OCR text boost. The visual decision gate reads this,
	// never the boosted Score.
	VisualScore    float64   `json:"visual_score"`
	Confidence     int       `json:"confidence"` // percent, round(((score+1)/2)*100)
	ReferenceCount int       `json:"reference_count"`
}

// ScanRecord tracks one photo through the identification pipeline.
// Version is an optimistic counter checked on every stage-advancing write so
// two concurrent advances on the same id cannot interleave.
type ScanRecord struct {
	ID          uuid.UUID          `json:"id"`
	OwnerID     string             `json:"owner_id"`
	Stage       ScanStage          `json:"stage"`
	Version     int                `json:"version"`
	ImageRef    string             `json:"image_ref"`
	OCRText     *string            `json:"ocr_text,omitempty"`
	Packaging   *PackagingInsight  `json:"packaging,omitempty"`
	Label       *LabelInsight      `json:"label,omitempty"`
	Candidates  []MatchCandidate   `json:"candidates,omitempty"`
	Decision    *CanonicalDecision `json:"decision,omitempty"`
	Summary     *string            `json:"summary,omitempty"`
	FailedStage *ScanStage         `json:"failed_stage,omitempty"`
	ErrorDetail *string            `json:"error_detail,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CreateScanRequest is the request to upload a scan.
type CreateScanRequest struct {
	OwnerID  string `json:"owner_id"  validate:"required"`
	ImageRef string `json:"image_ref" validate:"required"`
}

// ListScansFilters filters the scan listing.
type ListScansFilters struct {
	OwnerID *string    `form:"owner_id" json:"owner_id,omitempty"`
	Stage   *ScanStage `form:"stage"    json:"stage,omitempty"   validate:"omitempty,scan_stage"`
	Limit   int        `form:"limit"    json:"limit"             validate:"omitempty,min=0"`
	Offset  int        `form:"offset"   json:"offset"            validate:"omitempty,min=0"`
}

// ListScansResponse is the response for listing scan records.
type ListScansResponse struct {
	Data   []ScanRecord `json:"data"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
