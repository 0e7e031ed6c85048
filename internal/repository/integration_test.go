package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
	"github.com/strainlens/hub/pkg/database"
)

// Schema matches production except for the embedding dimension, kept small so
// test vectors stay readable.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE strains (
		id uuid PRIMARY KEY,
		owner_id text NOT NULL,
		name text NOT NULL,
		type_tag text,
		notes text,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL,
		UNIQUE (owner_id, name)
	)`,
	`CREATE TABLE strain_references (
		id uuid PRIMARY KEY,
		strain_id uuid NOT NULL REFERENCES strains(id) ON DELETE CASCADE,
		image_ref text NOT NULL,
		embedding halfvec(3),
		position int NOT NULL,
		created_at timestamptz NOT NULL
	)`,
	`CREATE TABLE scans (
		id uuid PRIMARY KEY,
		owner_id text NOT NULL,
		stage text NOT NULL,
		version int NOT NULL,
		image_ref text NOT NULL,
		ocr_text text,
		packaging jsonb,
		label jsonb,
		candidates jsonb,
		decision jsonb,
		summary text,
		failed_stage text,
		error_detail text,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE TABLE scan_counters (
		owner_id text PRIMARY KEY,
		scan_count bigint NOT NULL
	)`,
}

// setupTestPool starts a pgvector-enabled Postgres container, applies the
// schema, and returns a connected pool. Skipped in -short mode.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("strainlens_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.NewPostgresPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, stmt := range schemaStatements {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	return pool
}

func TestScansRepository_Integration(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()

	repo, err := NewScansRepository(ctx, pool)
	require.NoError(t, err)

	t.Run("create and get", func(t *testing.T) {
		created, err := repo.Create(ctx, models.CreateScanRequest{
			OwnerID: "owner-1", ImageRef: "https://img.example/a.jpg",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ScanStagePending, created.Stage)
		assert.Equal(t, 1, created.Version)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "owner-1", got.OwnerID)
		assert.Equal(t, models.ScanStagePending, got.Stage)
		assert.Nil(t, got.OCRText)

		count, err := repo.ScanCount(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("stage advance writes enrichment and bumps version", func(t *testing.T) {
		created, err := repo.Create(ctx, models.CreateScanRequest{
			OwnerID: "owner-2", ImageRef: "https://img.example/b.jpg",
		})
		require.NoError(t, err)

		ocr := "1g VAPE Blue Dream"
		packagingName := "Blue Dream"
		skipped, err := repo.UpdateStage(ctx, ScanStageUpdate{
			ID:      created.ID,
			Stage:   models.ScanStageProcessing,
			OCRText: &ocr,
			Packaging: &models.PackagingInsight{
				StrainName: &packagingName,
			},
		}, 1)
		require.NoError(t, err)
		assert.Empty(t, skipped)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScanStageProcessing, got.Stage)
		assert.Equal(t, 2, got.Version)
		require.NotNil(t, got.OCRText)
		assert.Equal(t, ocr, *got.OCRText)
		require.NotNil(t, got.Packaging)
		require.NotNil(t, got.Packaging.StrainName)
		assert.Equal(t, packagingName, *got.Packaging.StrainName)
	})

	t.Run("stale version loses the write", func(t *testing.T) {
		created, err := repo.Create(ctx, models.CreateScanRequest{
			OwnerID: "owner-3", ImageRef: "https://img.example/c.jpg",
		})
		require.NoError(t, err)

		_, err = repo.UpdateStage(ctx, ScanStageUpdate{
			ID: created.ID, Stage: models.ScanStageProcessing,
		}, 1)
		require.NoError(t, err)

		// A second advance still carrying version 1 must not apply.
		_, err = repo.UpdateStage(ctx, ScanStageUpdate{
			ID: created.ID, Stage: models.ScanStageProcessing,
		}, 1)
		require.ErrorIs(t, err, scanerrors.ErrStaleWrite)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("unknown scan", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, scanerrors.ErrNotFound)

		_, err = repo.UpdateStage(ctx, ScanStageUpdate{
			ID: uuid.Must(uuid.NewV7()), Stage: models.ScanStageProcessing,
		}, 1)
		assert.ErrorIs(t, err, scanerrors.ErrNotFound)
	})

	t.Run("degraded write skips columns the schema does not know", func(t *testing.T) {
		created, err := repo.Create(ctx, models.CreateScanRequest{
			OwnerID: "owner-4", ImageRef: "https://img.example/d.jpg",
		})
		require.NoError(t, err)

		// Repository wired as if the packaging column had not been migrated yet.
		lagging := NewScansRepositoryWithColumns(pool, []string{"ocr_text"})

		ocr := "some text"
		brand := "Acme Farms"
		skipped, err := lagging.UpdateStage(ctx, ScanStageUpdate{
			ID:        created.ID,
			Stage:     models.ScanStageProcessing,
			OCRText:   &ocr,
			Packaging: &models.PackagingInsight{Brand: &brand},
		}, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"ocr_text", "packaging"}, skipped)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScanStageProcessing, got.Stage)
		assert.Equal(t, 2, got.Version)
		assert.Nil(t, got.OCRText)
		assert.Nil(t, got.Packaging)
	})

	t.Run("list filters by owner and stage", func(t *testing.T) {
		owner := "owner-list"

		first, err := repo.Create(ctx, models.CreateScanRequest{OwnerID: owner, ImageRef: "one.jpg"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, models.CreateScanRequest{OwnerID: owner, ImageRef: "two.jpg"})
		require.NoError(t, err)

		_, err = repo.UpdateStage(ctx, ScanStageUpdate{ID: first.ID, Stage: models.ScanStageProcessing}, 1)
		require.NoError(t, err)

		stage := models.ScanStageProcessing
		records, total, err := repo.List(ctx, models.ListScansFilters{
			OwnerID: &owner, Stage: &stage, Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, records, 1)
		assert.Equal(t, first.ID, records[0].ID)
	})
}

func TestStrainsRepository_Integration(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()

	repo := NewStrainsRepository(pool)

	t.Run("create, add references, get", func(t *testing.T) {
		profile, err := repo.Create(ctx, models.CreateStrainRequest{
			OwnerID: "owner-1", Name: "Blue Dream",
		})
		require.NoError(t, err)

		require.NoError(t, repo.AddReference(ctx, profile.ID, "a.jpg", []float32{1, 0, 0}))
		require.NoError(t, repo.AddReference(ctx, profile.ID, "b.jpg", []float32{0, 1, 0}))

		got, err := repo.Get(ctx, profile.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.ImageRefs)
		require.Len(t, got.Embeddings, 2)
		assert.Equal(t, []float32{1, 0, 0}, got.Embeddings[0])
		assert.Equal(t, []float32{0, 1, 0}, got.Embeddings[1])
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := repo.Create(ctx, models.CreateStrainRequest{OwnerID: "owner-1", Name: "Blue Dream"})
		assert.ErrorIs(t, err, scanerrors.ErrConflict)

		// Same name under a different owner is fine.
		_, err = repo.Create(ctx, models.CreateStrainRequest{OwnerID: "owner-2", Name: "Blue Dream"})
		assert.NoError(t, err)
	})

	t.Run("reference for unknown strain", func(t *testing.T) {
		err := repo.AddReference(ctx, uuid.Must(uuid.NewV7()), "x.jpg", []float32{1, 0, 0})
		assert.ErrorIs(t, err, scanerrors.ErrNotFound)
	})

	t.Run("owner snapshot carries embeddings in append order", func(t *testing.T) {
		owner := "owner-snapshot"

		first, err := repo.Create(ctx, models.CreateStrainRequest{OwnerID: owner, Name: "Glitter Bomb"})
		require.NoError(t, err)
		second, err := repo.Create(ctx, models.CreateStrainRequest{OwnerID: owner, Name: "Gelato"})
		require.NoError(t, err)

		require.NoError(t, repo.AddReference(ctx, first.ID, "g1.jpg", []float32{0.5, 0.5, 0}))
		require.NoError(t, repo.AddReference(ctx, second.ID, "g2.jpg", []float32{0, 0, 1}))

		snapshot, err := repo.SnapshotForOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, snapshot, 2)
		assert.Equal(t, "Glitter Bomb", snapshot[0].Name)
		assert.Equal(t, []float32{0.5, 0.5, 0}, snapshot[0].Embeddings[0])
		assert.Equal(t, "Gelato", snapshot[1].Name)

		empty, err := repo.SnapshotForOwner(ctx, "owner-without-strains")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("backfill finds and fills null embeddings", func(t *testing.T) {
		profile, err := repo.Create(ctx, models.CreateStrainRequest{OwnerID: "owner-backfill", Name: "OG Kush"})
		require.NoError(t, err)

		refID := uuid.Must(uuid.NewV7())
		_, err = pool.Exec(ctx, `
			INSERT INTO strain_references (id, strain_id, image_ref, embedding, position, created_at)
			VALUES ($1, $2, 'imported.jpg', NULL, 0, $3)`,
			refID, profile.ID, time.Now())
		require.NoError(t, err)

		missing, err := repo.ListReferencesMissingEmbedding(ctx)
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, refID, missing[0].ID)
		assert.Equal(t, profile.ID, missing[0].StrainID)
		assert.Equal(t, "imported.jpg", missing[0].ImageRef)

		require.NoError(t, repo.SetReferenceEmbedding(ctx, refID, []float32{0.25, 0.75, 0}))

		missing, err = repo.ListReferencesMissingEmbedding(ctx)
		require.NoError(t, err)
		assert.Empty(t, missing)

		err = repo.SetReferenceEmbedding(ctx, uuid.Must(uuid.NewV7()), []float32{1, 0, 0})
		assert.ErrorIs(t, err, scanerrors.ErrNotFound)
	})

	t.Run("owner snapshot omits references awaiting backfill", func(t *testing.T) {
		owner := "owner-null-ref"

		profile, err := repo.Create(ctx, models.CreateStrainRequest{OwnerID: owner, Name: "Sour Diesel"})
		require.NoError(t, err)
		require.NoError(t, repo.AddReference(ctx, profile.ID, "sd1.jpg", []float32{1, 0, 0}))

		// An imported reference without an embedding yet must not break the
		// owner's library load.
		_, err = pool.Exec(ctx, `
			INSERT INTO strain_references (id, strain_id, image_ref, embedding, position, created_at)
			VALUES ($1, $2, 'sd2.jpg', NULL, 1, $3)`,
			uuid.Must(uuid.NewV7()), profile.ID, time.Now())
		require.NoError(t, err)

		snapshot, err := repo.SnapshotForOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, snapshot, 1)
		assert.Equal(t, []string{"sd1.jpg"}, snapshot[0].ImageRefs)
		require.Len(t, snapshot[0].Embeddings, 1)
		assert.Equal(t, []float32{1, 0, 0}, snapshot[0].Embeddings[0])
	})

	t.Run("delete removes references with the strain", func(t *testing.T) {
		profile, err := repo.Create(ctx, models.CreateStrainRequest{OwnerID: "owner-delete", Name: "Wedding Cake"})
		require.NoError(t, err)
		require.NoError(t, repo.AddReference(ctx, profile.ID, "w.jpg", []float32{1, 0, 0}))

		require.NoError(t, repo.Delete(ctx, profile.ID))

		_, err = repo.Get(ctx, profile.ID)
		assert.ErrorIs(t, err, scanerrors.ErrNotFound)

		var refCount int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM strain_references WHERE strain_id = $1`, profile.ID).Scan(&refCount))
		assert.Zero(t, refCount)

		assert.ErrorIs(t, repo.Delete(ctx, profile.ID), scanerrors.ErrNotFound)
	})
}
