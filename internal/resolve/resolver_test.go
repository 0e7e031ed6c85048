package resolve

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/strainlens/hub/internal/models"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestNormalizeStrainName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1g VAPE Blue Dream", "Blue Dream"},
		{"1G VAPE Glitter Bomb", "Glitter Bomb"},
		{"ONE GRAM Purple Haze", "Purple Haze"},
		{"3.5g Wedding   Cake", "Wedding Cake"},
		{"  Sour Diesel  ", "Sour Diesel"},
		{"1g", ""},
		{"", ""},
		{"   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeStrainName(tc.in))
		})
	}
}

func TestResolver_PackagingAlwaysWins(t *testing.T) {
	r := NewResolver(0)

	t.Run("packaging name beats high-confidence visual match", func(t *testing.T) {
		packaging := &models.PackagingInsight{StrainName: strPtr("1g VAPE Glitter Bomb")}
		top := &models.MatchCandidate{StrainID: uuid.New(), Name: "OG Kush"}

		d := r.Resolve(packaging, nil, top, 0.95)

		assert.Equal(t, "Glitter Bomb", d.Name)
		assert.Equal(t, models.DecisionSourcePackaging, d.Source)
		assert.InDelta(t, 1.0, d.Confidence, 1e-9)
		assert.True(t, d.PackagedProduct)
		assert.Equal(t, "OG Kush", *d.VisualName)
	})

	t.Run("packaging confidence is carried when present", func(t *testing.T) {
		packaging := &models.PackagingInsight{
			StrainName: strPtr("Blue Dream"),
			Confidence: floatPtr(0.8),
		}

		d := r.Resolve(packaging, nil, nil, 0)
		assert.Equal(t, models.DecisionSourcePackaging, d.Source)
		assert.InDelta(t, 0.8, d.Confidence, 1e-9)
	})

	t.Run("even 0.99 visual never overrides packaging", func(t *testing.T) {
		packaging := &models.PackagingInsight{StrainName: strPtr("Gelato")}
		top := &models.MatchCandidate{StrainID: uuid.New(), Name: "Sour Diesel"}

		d := r.Resolve(packaging, nil, top, 0.99)
		assert.Equal(t, models.DecisionSourcePackaging, d.Source)
		assert.Equal(t, "Gelato", d.Name)
	})

	t.Run("packaged without a readable name yields packaging-unknown sentinel", func(t *testing.T) {
		packaging := &models.PackagingInsight{Brand: strPtr("SomeBrand")}
		top := &models.MatchCandidate{StrainID: uuid.New(), Name: "OG Kush"}

		d := r.Resolve(packaging, nil, top, 0.99)
		assert.Equal(t, models.UnknownStrainName, d.Name)
		assert.Equal(t, models.DecisionSourcePackagingUnknown, d.Source)
		assert.InDelta(t, 0, d.Confidence, 1e-9)
		assert.True(t, d.PackagedProduct)
	})

	t.Run("quantity-only packaging name counts as no name", func(t *testing.T) {
		packaging := &models.PackagingInsight{StrainName: strPtr("1g")}

		d := r.Resolve(packaging, nil, nil, 0)
		assert.Equal(t, models.DecisionSourcePackagingUnknown, d.Source)
	})

	t.Run("vape category label marks scan as packaged", func(t *testing.T) {
		label := &models.LabelInsight{Categories: []string{"Vape"}}
		top := &models.MatchCandidate{StrainID: uuid.New(), Name: "OG Kush"}

		d := r.Resolve(nil, label, top, 0.99)
		assert.Equal(t, models.DecisionSourcePackagingUnknown, d.Source)
		assert.True(t, d.PackagedProduct)
	})

	t.Run("label insight name used when packaging insight has none", func(t *testing.T) {
		label := &models.LabelInsight{StrainName: strPtr("1g Wedding Cake"), Packaged: true}

		d := r.Resolve(nil, label, nil, 0)
		assert.Equal(t, "Wedding Cake", d.Name)
		assert.Equal(t, models.DecisionSourcePackaging, d.Source)
	})
}

func TestResolver_VisualThreshold(t *testing.T) {
	r := NewResolver(0.6)
	top := &models.MatchCandidate{StrainID: uuid.New(), Name: "Sour Diesel"}

	t.Run("exactly 0.6 passes", func(t *testing.T) {
		d := r.Resolve(nil, nil, top, 0.6)
		assert.Equal(t, "Sour Diesel", d.Name)
		assert.Equal(t, models.DecisionSourceVisual, d.Source)
		assert.InDelta(t, 0.6, d.Confidence, 1e-9)
		assert.False(t, d.PackagedProduct)
	})

	t.Run("just below 0.6 fails to unknown", func(t *testing.T) {
		d := r.Resolve(nil, nil, top, 0.599)
		assert.Equal(t, models.UnknownStrainName, d.Name)
		assert.Equal(t, models.DecisionSourceNone, d.Source)
		assert.InDelta(t, 0, d.Confidence, 1e-9)
	})

	t.Run("low-confidence scenario", func(t *testing.T) {
		d := r.Resolve(nil, nil, top, 0.42)
		assert.Equal(t, models.UnknownStrainName, d.Name)
		assert.Equal(t, models.DecisionSourceNone, d.Source)
	})

	t.Run("no candidate yields unknown", func(t *testing.T) {
		d := r.Resolve(nil, nil, nil, 0.99)
		assert.Equal(t, models.UnknownStrainName, d.Name)
		assert.Equal(t, models.DecisionSourceNone, d.Source)
	})

	t.Run("nameless candidate falls back to strain id", func(t *testing.T) {
		id := uuid.New()
		d := r.Resolve(nil, nil, &models.MatchCandidate{StrainID: id}, 0.9)
		assert.Equal(t, id.String(), d.Name)
		assert.Equal(t, models.DecisionSourceVisual, d.Source)
	})

	t.Run("name is never empty", func(t *testing.T) {
		d := r.Resolve(nil, nil, nil, 0)
		assert.NotEmpty(t, d.Name)
	})
}
