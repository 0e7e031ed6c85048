// Package service holds the business logic between the HTTP/worker layers and
// the repositories.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/observability"
	"github.com/strainlens/hub/internal/reference"
	"github.com/strainlens/hub/pkg/cache"
)

const cacheNameLibrary = "reference_library"

// LibrarySnapshotRepository loads an owner's full strain library from storage.
type LibrarySnapshotRepository interface {
	SnapshotForOwner(ctx context.Context, ownerID string) ([]*models.StrainProfile, error)
}

// LibraryProvider serves per-owner reference-library snapshots with a short
// TTL cache so a burst of scans does not reload the library per scan. The TTL
// bounds staleness; mutations through StrainsService invalidate eagerly.
type LibraryProvider struct {
	repo    LibrarySnapshotRepository
	cache   *cache.LoaderCache[string, *reference.Library]
	metrics observability.CacheMetrics
}

// NewLibraryProvider creates a provider caching up to maxEntries owner
// libraries for ttl. metrics may be nil.
func NewLibraryProvider(
	repo LibrarySnapshotRepository,
	maxEntries int,
	ttl time.Duration,
	metrics observability.CacheMetrics,
) *LibraryProvider {
	return &LibraryProvider{
		repo:    repo,
		cache:   cache.NewLoaderCache[string, *reference.Library](maxEntries, ttl, func(s string) string { return s }),
		metrics: metrics,
	}
}

// LibraryForOwner returns the owner's reference library snapshot.
func (p *LibraryProvider) LibraryForOwner(ctx context.Context, ownerID string) (*reference.Library, error) {
	lib, hit, err := p.cache.GetWithStats(ctx, ownerID, func(ctx context.Context, owner string) (*reference.Library, error) {
		profiles, err := p.repo.SnapshotForOwner(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("load library snapshot: %w", err)
		}

		return reference.NewLibrary(profiles), nil
	})
	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		if hit {
			p.metrics.RecordHit(ctx, cacheNameLibrary)
		} else {
			p.metrics.RecordMiss(ctx, cacheNameLibrary)
		}
	}

	return lib, nil
}

// Invalidate drops the cached library for an owner after a mutation.
func (p *LibraryProvider) Invalidate(ownerID string) {
	p.cache.Invalidate(ownerID)
}
