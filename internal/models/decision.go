package models

// UnknownStrainName is the sentinel returned whenever no strain can be
// confidently resolved. The resolver never returns an empty name.
const UnknownStrainName = "Cannabis (strain unknown)"

// DecisionSource tags where a canonical strain name came from.
type DecisionSource string

// Decision sources, in precedence order. A packaging-derived name is never
// overridden by a visual match: mislabeling a packaged product is worse than
// admitting uncertainty.
const (
	DecisionSourcePackaging        DecisionSource = "packaging"
	DecisionSourcePackagingUnknown DecisionSource = "packaging-unknown"
	DecisionSourceVisual           DecisionSource = "visual"
	DecisionSourceNone             DecisionSource = "none"
)

// CanonicalDecision is the single authoritative strain decision for one scan.
// Immutable once produced; a re-scan produces a new decision.
type CanonicalDecision struct {
	Name            string         `json:"name"`
	Confidence      float64        `json:"confidence"`
	Source          DecisionSource `json:"source"`
	PackagingName   *string        `json:"packaging_name,omitempty"`
	VisualName      *string        `json:"visual_name,omitempty"`
	PackagedProduct bool           `json:"packaged_product"`
}
