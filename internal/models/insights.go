package models

import "strings"

// PackagingInsight holds structured facts read off retail packaging by the
// vision service. All fields are untrusted and possibly partial.
type PackagingInsight struct {
	StrainName *string  `json:"strain_name,omitempty"`
	Brand      *string  `json:"brand,omitempty"`
	BatchID    *string  `json:"batch_id,omitempty"`
	THCPercent *float64 `json:"thc_percent,omitempty"`
	CBDPercent *float64 `json:"cbd_percent,omitempty"`
	// Confidence is the vision service's own confidence in the extracted
	// strain name, when it reports one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// LabelInsight holds visual classification labels for the scanned image.
type LabelInsight struct {
	StrainName *string  `json:"strain_name,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Packaged   bool     `json:"packaged"`
}

// packagedCategories are label categories that mark a scan as a packaged
// product rather than raw plant material.
var packagedCategories = map[string]struct{}{
	"packaged": {},
	"vape":     {},
}

// IndicatesPackaged reports whether the label insight marks the scan as a
// packaged product, either explicitly or via a packaged/vape category.
func (l *LabelInsight) IndicatesPackaged() bool {
	if l == nil {
		return false
	}

	if l.Packaged {
		return true
	}

	for _, c := range l.Categories {
		if _, ok := packagedCategories[strings.ToLower(strings.TrimSpace(c))]; ok {
			return true
		}
	}

	return false
}

// VisionResult is the raw output of one vision-service call: OCR text plus any
// structured insights the service extracted. Empty text is not an error.
type VisionResult struct {
	Text      string            `json:"text"`
	Packaging *PackagingInsight `json:"packaging,omitempty"`
	Label     *LabelInsight     `json:"label,omitempty"`
}
