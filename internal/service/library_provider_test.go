package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strainlens/hub/internal/models"
)

type mockSnapshotRepo struct {
	loads      atomic.Int32
	snapshotFn func(ctx context.Context, ownerID string) ([]*models.StrainProfile, error)
}

func (m *mockSnapshotRepo) SnapshotForOwner(ctx context.Context, ownerID string) ([]*models.StrainProfile, error) {
	m.loads.Add(1)
	return m.snapshotFn(ctx, ownerID)
}

func TestLibraryProvider_cachesSnapshots(t *testing.T) {
	repo := &mockSnapshotRepo{
		snapshotFn: func(_ context.Context, ownerID string) ([]*models.StrainProfile, error) {
			return []*models.StrainProfile{{
				ID:         uuid.Must(uuid.NewV7()),
				OwnerID:    ownerID,
				Name:       "Blue Dream",
				Embeddings: [][]float32{{1, 0}},
			}}, nil
		},
	}

	provider := NewLibraryProvider(repo, 8, time.Minute, nil)

	lib, err := provider.LibraryForOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Len())

	_, err = provider.LibraryForOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loads.Load())

	provider.Invalidate("owner-1")

	_, err = provider.LibraryForOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())
}
