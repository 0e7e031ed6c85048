// Package repository handles data access for strains and scans.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
)

// StrainsRepository handles data access for the strains and strain_references tables.
// Reference embeddings are stored as halfvec (2 bytes per dimension); pgvector-go
// converts float32 to float16 when encoding.
type StrainsRepository struct {
	db *pgxpool.Pool
}

// NewStrainsRepository creates a new strains repository.
func NewStrainsRepository(db *pgxpool.Pool) *StrainsRepository {
	return &StrainsRepository{db: db}
}

// Create inserts a new strain profile and returns it.
func (r *StrainsRepository) Create(ctx context.Context, req models.CreateStrainRequest) (*models.StrainProfile, error) {
	now := time.Now()
	profile := &models.StrainProfile{
		ID:        uuid.Must(uuid.NewV7()),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		TypeTag:   req.TypeTag,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO strains (id, owner_id, name, type_tag, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.ID, profile.OwnerID, profile.Name, profile.TypeTag, profile.Notes, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, scanerrors.NewConflictError(
				fmt.Sprintf("strain %q already exists for this owner", req.Name))
		}

		return nil, fmt.Errorf("strains insert: %w", err)
	}

	return profile, nil
}

// Get returns one strain profile with its reference images and embeddings, in
// append order. Returns a NotFoundError when the strain does not exist.
func (r *StrainsRepository) Get(ctx context.Context, strainID uuid.UUID) (*models.StrainProfile, error) {
	var p models.StrainProfile

	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, type_tag, notes, created_at, updated_at
		FROM strains WHERE id = $1`, strainID,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.TypeTag, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scanerrors.NewNotFoundError("strain", "")
		}

		return nil, fmt.Errorf("strains get: %w", err)
	}

	if err := r.loadReferences(ctx, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// AddReference appends one reference image and its embedding to the strain.
// Position keeps the image and embedding lists parallel and in append order.
func (r *StrainsRepository) AddReference(
	ctx context.Context, strainID uuid.UUID, imageRef string, embedding []float32,
) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO strain_references (id, strain_id, image_ref, embedding, position, created_at)
		SELECT $1, $2, $3, $4, COALESCE(MAX(position) + 1, 0), $5
		FROM strain_references WHERE strain_id = $2`,
		uuid.Must(uuid.NewV7()), strainID, imageRef, pgvector.NewHalfVector(embedding), time.Now(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return scanerrors.NewNotFoundError("strain", "")
		}

		return fmt.Errorf("strain references insert: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("strain references insert: no row written")
	}

	return nil
}

// Delete removes a strain and its references (explicit, strain-scoped; nothing
// else ever deletes reference embeddings).
func (r *StrainsRepository) Delete(ctx context.Context, strainID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM strains WHERE id = $1`, strainID)
	if err != nil {
		return fmt.Errorf("strains delete: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return scanerrors.NewNotFoundError("strain", "")
	}

	return nil
}

// List returns strain profiles for an owner (metadata only, no embeddings) plus the total count.
func (r *StrainsRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]models.StrainProfile, int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, name, type_tag, notes, created_at, updated_at
		FROM strains WHERE owner_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("strains list: %w", err)
	}
	defer rows.Close()

	var out []models.StrainProfile

	for rows.Next() {
		var p models.StrainProfile
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.TypeTag, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan strain: %w", err)
		}

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating strains: %w", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM strains WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count strains: %w", err)
	}

	return out, total, nil
}

// SnapshotForOwner loads all of an owner's strain profiles with their
// reference embeddings, in strain creation order with references in append
// order. This is the reference-library snapshot used by one matching call.
// References still waiting for a backfilled embedding are omitted entirely,
// which keeps the image and embedding lists parallel.
func (r *StrainsRepository) SnapshotForOwner(ctx context.Context, ownerID string) ([]*models.StrainProfile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, name, type_tag, notes, created_at, updated_at
		FROM strains WHERE owner_id = $1
		ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("strains snapshot: %w", err)
	}
	defer rows.Close()

	var (
		profiles []*models.StrainProfile
		byID     = map[uuid.UUID]*models.StrainProfile{}
	)

	for rows.Next() {
		var p models.StrainProfile
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.TypeTag, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan strain: %w", err)
		}

		profiles = append(profiles, &p)
		byID[p.ID] = &p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strains: %w", err)
	}

	if len(profiles) == 0 {
		return nil, nil
	}

	refRows, err := r.db.Query(ctx, `
		SELECT sr.strain_id, sr.image_ref, sr.embedding
		FROM strain_references sr
		INNER JOIN strains s ON s.id = sr.strain_id
		WHERE s.owner_id = $1 AND sr.embedding IS NOT NULL
		ORDER BY sr.strain_id, sr.position`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("strain references snapshot: %w", err)
	}
	defer refRows.Close()

	for refRows.Next() {
		var (
			strainID uuid.UUID
			imageRef string
			vec      pgvector.HalfVector
		)

		if err := refRows.Scan(&strainID, &imageRef, &vec); err != nil {
			return nil, fmt.Errorf("scan strain reference: %w", err)
		}

		if p, ok := byID[strainID]; ok {
			p.ImageRefs = append(p.ImageRefs, imageRef)
			p.Embeddings = append(p.Embeddings, vec.Slice())
		}
	}

	if err := refRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strain references: %w", err)
	}

	return profiles, nil
}

// ListReferencesMissingEmbedding returns reference rows whose embedding is
// NULL (e.g. written before embeddings were enabled), for the backfill command.
func (r *StrainsRepository) ListReferencesMissingEmbedding(ctx context.Context) ([]ReferenceToEmbed, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, strain_id, image_ref FROM strain_references
		WHERE embedding IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list references missing embedding: %w", err)
	}
	defer rows.Close()

	var out []ReferenceToEmbed

	for rows.Next() {
		var ref ReferenceToEmbed
		if err := rows.Scan(&ref.ID, &ref.StrainID, &ref.ImageRef); err != nil {
			return nil, fmt.Errorf("scan reference to embed: %w", err)
		}

		out = append(out, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating references to embed: %w", err)
	}

	return out, nil
}

// SetReferenceEmbedding stores the embedding for one reference row (backfill).
func (r *StrainsRepository) SetReferenceEmbedding(ctx context.Context, referenceID uuid.UUID, embedding []float32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE strain_references SET embedding = $1 WHERE id = $2`,
		pgvector.NewHalfVector(embedding), referenceID,
	)
	if err != nil {
		return fmt.Errorf("set reference embedding: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return scanerrors.NewNotFoundError("strain reference", "")
	}

	return nil
}

// ReferenceToEmbed is one strain reference image still waiting for an embedding.
type ReferenceToEmbed struct {
	ID       uuid.UUID
	StrainID uuid.UUID
	ImageRef string
}

func (r *StrainsRepository) loadReferences(ctx context.Context, p *models.StrainProfile) error {
	rows, err := r.db.Query(ctx, `
		SELECT image_ref, embedding FROM strain_references
		WHERE strain_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("strain references get: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			imageRef string
			vec      *pgvector.HalfVector
		)

		if err := rows.Scan(&imageRef, &vec); err != nil {
			return fmt.Errorf("scan strain reference: %w", err)
		}

		p.ImageRefs = append(p.ImageRefs, imageRef)
		if vec != nil {
			p.Embeddings = append(p.Embeddings, vec.Slice())
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating strain references: %w", err)
	}

	return nil
}
