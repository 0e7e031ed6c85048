// Package match scores a query embedding against the reference library and
// produces ranked strain candidates.
package match

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/reference"
	"github.com/strainlens/hub/pkg/vecmath"
)

// Defaults for the engine's tunables. The text boost and top-K come from the
// product side; change them via config, not here.
const (
	DefaultTextBoost = 0.05
	DefaultTopK      = 5
)

// Params configures the match engine. Logger may be nil (slog default).
type Params struct {
	// TextBoost is added to the raw score of candidates whose strain name
	// appears in the OCR text. Zero means DefaultTextBoost; use a negative
	// value to disable.
	TextBoost float64
	// TopK caps the number of returned candidates. Zero means DefaultTopK.
	TopK   int
	Logger *slog.Logger
}

// Engine ranks strain candidates for a query embedding. Stateless between
// calls; the reference library is passed in per call.
type Engine struct {
	textBoost float64
	topK      int
	logger    *slog.Logger
}

// NewEngine creates a match engine.
func NewEngine(p Params) *Engine {
	boost := p.TextBoost
	if boost == 0 {
		boost = DefaultTextBoost
	} else if boost < 0 {
		boost = 0
	}

	topK := p.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{textBoost: boost, topK: topK, logger: logger}
}

// confidencePercent maps a raw cosine score in [-1,1] onto [0,100].
func confidencePercent(score float64) int {
	return int(math.Round(((score + 1) / 2) * 100))
}

// Rank scores the query embedding against every strain in the library that
// has at least one reference embedding and returns the top-K candidates,
// ordered by score descending (insertion order breaks ties). If ocrText is
// non-empty, candidates whose strain name occurs in it (case-insensitive)
// get the text boost before confidence is derived; the boost can reorder
// candidates but never introduces one that was not already scored.
//
// An empty library yields an empty result. A strain whose pooled embedding
// has a different dimension than the query is skipped and logged, not fatal.
func (e *Engine) Rank(query []float32, lib *reference.Library, ocrText string) []models.MatchCandidate {
	if lib == nil || lib.Len() == 0 {
		return nil
	}

	candidates := make([]models.MatchCandidate, 0, lib.Len())

	for _, p := range lib.Profiles() {
		pooled := lib.PooledEmbedding(p.ID)
		if pooled == nil {
			continue // no references, excluded rather than scored as zero
		}

		score, err := vecmath.CosineSimilarity(query, pooled)
		if err != nil {
			if errors.Is(err, vecmath.ErrDimensionMismatch) {
				e.logger.Warn("match: skipping strain with mismatched embedding dimension",
					"strain_id", p.ID,
					"strain_name", p.Name,
					"query_dim", len(query),
					"pooled_dim", len(pooled),
				)

				continue
			}

			e.logger.Error("match: scoring failed", "strain_id", p.ID, "error", err)

			continue
		}

		candidates = append(candidates, models.MatchCandidate{
			StrainID:       p.ID,
			Name:           p.Name,
			TypeTag:        p.TypeTag,
			Notes:          p.Notes,
			Score:          score,
			VisualScore:    score,
			Confidence:     confidencePercent(score),
			ReferenceCount: p.ReferenceCount(),
		})
	}

	sortByScore(candidates)

	if ocrText != "" && e.textBoost > 0 {
		e.applyTextBoost(candidates, ocrText)
		sortByScore(candidates)
	}

	if len(candidates) > e.topK {
		candidates = candidates[:e.topK]
	}

	return candidates
}

// applyTextBoost bumps the ranking score of candidates whose name occurs in
// the OCR text and re-derives their confidence. VisualScore stays at the raw
// cosine so the boost can reorder candidates without moving them past the
// visual decision gate.
func (e *Engine) applyTextBoost(candidates []models.MatchCandidate, ocrText string) {
	text := strings.ToLower(ocrText)

	for i := range candidates {
		name := strings.ToLower(strings.TrimSpace(candidates[i].Name))
		if name == "" || !strings.Contains(text, name) {
			continue
		}

		candidates[i].Score += e.textBoost
		candidates[i].Confidence = confidencePercent(candidates[i].Score)
	}
}

// sortByScore sorts descending by score. SliceStable keeps insertion order
// for equal scores; no name tiebreak is applied.
func sortByScore(candidates []models.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}
