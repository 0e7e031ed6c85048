// Package reference holds the in-memory strain reference library used by the
// match engine. A Library is a snapshot built per matching call and passed in
// explicitly, so tests can run against fixture libraries.
package reference

import (
	"github.com/google/uuid"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/pkg/vecmath"
)

// Library is an ordered collection of strain profiles with their reference
// embeddings. Insertion order is preserved; the match engine relies on it for
// stable tie-breaking. Read-only during matching.
type Library struct {
	profiles []*models.StrainProfile
	byID     map[uuid.UUID]*models.StrainProfile
}

// NewLibrary creates a library from the given profiles, preserving order.
// Profiles whose image and embedding lists have drifted out of parallel are
// still accepted; only the embeddings participate in matching.
func NewLibrary(profiles []*models.StrainProfile) *Library {
	lib := &Library{
		byID: make(map[uuid.UUID]*models.StrainProfile, len(profiles)),
	}

	for _, p := range profiles {
		lib.add(p)
	}

	return lib
}

func (l *Library) add(p *models.StrainProfile) {
	if _, ok := l.byID[p.ID]; ok {
		return
	}

	l.profiles = append(l.profiles, p)
	l.byID[p.ID] = p
}

// Profiles returns the profiles in insertion order.
func (l *Library) Profiles() []*models.StrainProfile {
	return l.profiles
}

// Get returns the profile for the given strain id, or nil.
func (l *Library) Get(strainID uuid.UUID) *models.StrainProfile {
	return l.byID[strainID]
}

// Len returns the number of strains in the library.
func (l *Library) Len() int {
	return len(l.profiles)
}

// AddReference appends one reference image and its embedding to the strain,
// keeping the parallel-list invariant. Returns false when the strain is
// absent from this snapshot.
func (l *Library) AddReference(strainID uuid.UUID, imageRef string, embedding []float32) bool {
	p, ok := l.byID[strainID]
	if !ok {
		return false
	}

	p.ImageRefs = append(p.ImageRefs, imageRef)
	p.Embeddings = append(p.Embeddings, embedding)

	return true
}

// PooledEmbedding returns the centroid of the strain's reference embeddings,
// or nil when the strain is unknown or has no references. Recomputed on every
// call; never cached beyond a single matching call, so references added
// moments earlier are picked up by the next match.
func (l *Library) PooledEmbedding(strainID uuid.UUID) []float32 {
	p, ok := l.byID[strainID]
	if !ok {
		return nil
	}

	return vecmath.MeanPooled(p.Embeddings)
}
