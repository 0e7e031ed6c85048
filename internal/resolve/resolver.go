// Package resolve turns packaging/label insights and the top visual match
// into exactly one canonical strain decision under strict precedence rules.
package resolve

import (
	"regexp"
	"strings"

	"github.com/strainlens/hub/internal/models"
)

// DefaultVisualConfidenceThreshold is the hard cutoff for accepting a visual
// match on raw bud. Exactly the threshold passes; below fails. The value
// comes from the product side; change it via config, not here.
const DefaultVisualConfidenceThreshold = 0.6

// quantityTokens strips leading quantity markers printed before the strain
// name on packaging, e.g. "1g", "3.5 G", "1G VAPE", "ONE GRAM".
var quantityTokens = regexp.MustCompile(`(?i)^((\d+(\.\d+)?\s*g(ram)?s?|one\s+gram|half\s+gram|vape)\s+)+`)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeStrainName strips leading quantity tokens, collapses internal
// whitespace, and trims. An empty result counts as "no name".
func NormalizeStrainName(raw string) string {
	s := strings.TrimSpace(raw)
	s = quantityTokens.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// nameRule extracts a candidate strain name from one of the optional insight
// sources. Rules are evaluated in priority order; the first non-empty
// normalized result wins.
type nameRule struct {
	source  string
	extract func(packaging *models.PackagingInsight, label *models.LabelInsight) string
}

var packagingNameRules = []nameRule{
	{
		source: "packaging_insight",
		extract: func(p *models.PackagingInsight, _ *models.LabelInsight) string {
			if p == nil || p.StrainName == nil {
				return ""
			}

			return *p.StrainName
		},
	},
	{
		source: "label_insight",
		extract: func(_ *models.PackagingInsight, l *models.LabelInsight) string {
			if l == nil || l.StrainName == nil {
				return ""
			}

			return *l.StrainName
		},
	},
}

// packagingName returns the first non-empty normalized strain name across the
// ordered extraction rules, or "".
func packagingName(packaging *models.PackagingInsight, label *models.LabelInsight) string {
	for _, rule := range packagingNameRules {
		if name := NormalizeStrainName(rule.extract(packaging, label)); name != "" {
			return name
		}
	}

	return ""
}

// Resolver applies the canonical-strain precedence rules.
type Resolver struct {
	visualThreshold float64
}

// NewResolver creates a resolver with the given visual-confidence cutoff.
// A non-positive threshold means DefaultVisualConfidenceThreshold.
func NewResolver(visualThreshold float64) *Resolver {
	if visualThreshold <= 0 {
		visualThreshold = DefaultVisualConfidenceThreshold
	}

	return &Resolver{visualThreshold: visualThreshold}
}

// Resolve produces the single authoritative decision for a scan.
//
// Packaged products never use a visual guess: if the scan is packaged, the
// result is either the packaging-derived name or the packaged-unknown
// sentinel, regardless of visual confidence. For raw bud, the top candidate's
// name is accepted only when visualConfidence meets the threshold (>=).
// The returned name is never empty.
func (r *Resolver) Resolve(
	packaging *models.PackagingInsight,
	label *models.LabelInsight,
	top *models.MatchCandidate,
	visualConfidence float64,
) models.CanonicalDecision {
	pkgName := packagingName(packaging, label)
	isPackaged := packaging != nil || label.IndicatesPackaged()

	var visualName string
	if top != nil {
		visualName = strings.TrimSpace(top.Name)
		if visualName == "" {
			visualName = top.StrainID.String()
		}
	}

	decision := models.CanonicalDecision{
		PackagedProduct: isPackaged,
	}
	if pkgName != "" {
		decision.PackagingName = &pkgName
	}

	if visualName != "" {
		decision.VisualName = &visualName
	}

	if isPackaged {
		if pkgName != "" {
			decision.Name = pkgName
			decision.Source = models.DecisionSourcePackaging
			decision.Confidence = 1.0

			if packaging != nil && packaging.Confidence != nil {
				decision.Confidence = *packaging.Confidence
			}

			return decision
		}

		decision.Name = models.UnknownStrainName
		decision.Source = models.DecisionSourcePackagingUnknown
		decision.Confidence = 0

		return decision
	}

	if visualName != "" && visualConfidence >= r.visualThreshold {
		decision.Name = visualName
		decision.Source = models.DecisionSourceVisual
		decision.Confidence = visualConfidence

		return decision
	}

	decision.Name = models.UnknownStrainName
	decision.Source = models.DecisionSourceNone
	decision.Confidence = 0

	return decision
}
