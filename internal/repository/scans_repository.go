package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
)

// DBTX is the subset of pgxpool.Pool the scans repository needs. Unit tests
// substitute a fake to exercise the degraded-write path without a database.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// requiredColumns are always written on every stage advance. The degraded
// write path never drops these.
var requiredColumns = []string{"id", "owner_id", "stage", "version", "image_ref", "created_at", "updated_at"}

// optionalColumns are enrichment fields that may lag behind in storage when a
// deploy lands before its migration. Order here fixes the order fields are
// reported as skipped.
var optionalColumns = []string{
	"ocr_text", "packaging", "label", "candidates", "decision",
	"summary", "failed_stage", "error_detail",
}

// ScansRepository handles data access for the scans table. It tolerates a
// storage schema that lags behind the code: enrichment columns unknown to the
// schema raise SchemaFieldUnknownError at this boundary (never inferred from
// database error text), and stage writes degrade to required fields only.
type ScansRepository struct {
	db DBTX
	// knownOptional is the set of optional columns present in the schema.
	knownOptional map[string]bool
}

// NewScansRepository creates a scans repository and discovers which optional
// columns the current schema knows.
func NewScansRepository(ctx context.Context, db DBTX) (*ScansRepository, error) {
	r := &ScansRepository{db: db, knownOptional: map[string]bool{}}

	rows, err := db.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'scans'`)
	if err != nil {
		return nil, fmt.Errorf("scans schema discovery: %w", err)
	}
	defer rows.Close()

	present := map[string]bool{}

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}

		present[name] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	for _, col := range requiredColumns {
		if !present[col] {
			return nil, fmt.Errorf("scans table is missing required column %q", col)
		}
	}

	for _, col := range optionalColumns {
		if present[col] {
			r.knownOptional[col] = true
		}
	}

	return r, nil
}

// NewScansRepositoryWithColumns creates a repository with a fixed set of known
// optional columns, skipping schema discovery. For tests.
func NewScansRepositoryWithColumns(db DBTX, knownOptional []string) *ScansRepository {
	known := make(map[string]bool, len(knownOptional))
	for _, col := range knownOptional {
		known[col] = true
	}

	return &ScansRepository{db: db, knownOptional: known}
}

// Create inserts a new pending scan record and bumps the owner's scan counter.
func (r *ScansRepository) Create(ctx context.Context, req models.CreateScanRequest) (*models.ScanRecord, error) {
	now := time.Now()
	rec := &models.ScanRecord{
		ID:        uuid.Must(uuid.NewV7()),
		OwnerID:   req.OwnerID,
		Stage:     models.ScanStagePending,
		Version:   1,
		ImageRef:  req.ImageRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO scans (id, owner_id, stage, version, image_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.OwnerID, rec.Stage, rec.Version, rec.ImageRef, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("scans insert: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO scan_counters (owner_id, scan_count) VALUES ($1, 1)
		ON CONFLICT (owner_id) DO UPDATE SET scan_count = scan_counters.scan_count + 1`,
		req.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("scan counter increment: %w", err)
	}

	return rec, nil
}

// ScanCount returns how many scans the owner has created.
func (r *ScansRepository) ScanCount(ctx context.Context, ownerID string) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx,
		`SELECT scan_count FROM scan_counters WHERE owner_id = $1`, ownerID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}

		return 0, fmt.Errorf("scan count: %w", err)
	}

	return count, nil
}

// assignment is one optional column write.
type assignment struct {
	column string
	value  any
}

// optionalAssignments collects the optional fields set on upd, marshaling
// structured fields to JSON for their jsonb columns.
func optionalAssignments(upd ScanStageUpdate) ([]assignment, error) {
	var out []assignment

	if upd.OCRText != nil {
		out = append(out, assignment{"ocr_text", *upd.OCRText})
	}

	for _, f := range []struct {
		column string
		value  any
		set    bool
	}{
		{"packaging", upd.Packaging, upd.Packaging != nil},
		{"label", upd.Label, upd.Label != nil},
		{"candidates", upd.Candidates, len(upd.Candidates) > 0},
		{"decision", upd.Decision, upd.Decision != nil},
	} {
		if !f.set {
			continue
		}

		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.column, err)
		}

		out = append(out, assignment{f.column, raw})
	}

	if upd.Summary != nil {
		out = append(out, assignment{"summary", *upd.Summary})
	}

	if upd.FailedStage != nil {
		out = append(out, assignment{"failed_stage", string(*upd.FailedStage)})
	}

	if upd.ErrorDetail != nil {
		out = append(out, assignment{"error_detail", *upd.ErrorDetail})
	}

	return out, nil
}

// ScanStageUpdate is one stage-advancing write. Only set fields are written;
// all enrichment fields are optional.
type ScanStageUpdate struct {
	ID          uuid.UUID
	Stage       models.ScanStage
	OCRText     *string
	Packaging   *models.PackagingInsight
	Label       *models.LabelInsight
	Candidates  []models.MatchCandidate
	Decision    *models.CanonicalDecision
	Summary     *string
	FailedStage *models.ScanStage
	ErrorDetail *string
}

// UpdateStage advances a scan to upd.Stage, writing enrichment fields along
// with the required ones. The write succeeds only when the stored version
// equals expectedVersion (the version is then incremented); a lost race
// returns StaleWriteError.
//
// When an enrichment field has no column in the known schema, the full write
// fails with SchemaFieldUnknownError and is retried with required fields
// only; the names of the dropped fields are returned so callers can report
// them. Non-schema storage errors propagate unchanged.
func (r *ScansRepository) UpdateStage(ctx context.Context, upd ScanStageUpdate, expectedVersion int) ([]string, error) {
	assignments, err := optionalAssignments(upd)
	if err != nil {
		return nil, err
	}

	err = r.writeStage(ctx, upd, expectedVersion, assignments)
	if err == nil {
		return nil, nil
	}

	if !errors.Is(err, scanerrors.ErrSchemaFieldUnknown) {
		return nil, err
	}

	skipped := make([]string, 0, len(assignments))
	for _, a := range assignments {
		skipped = append(skipped, a.column)
	}

	slog.Warn("scans: schema lags behind code, retrying stage write without enrichment fields",
		"scan_id", upd.ID,
		"stage", upd.Stage,
		"skipped_fields", skipped,
		"error", err,
	)

	if err := r.writeStage(ctx, upd, expectedVersion, nil); err != nil {
		return nil, err
	}

	return skipped, nil
}

// writeStage performs one UPDATE. With assignments it refuses fields the
// schema does not know; without them it writes only the required fields.
func (r *ScansRepository) writeStage(
	ctx context.Context, upd ScanStageUpdate, expectedVersion int, assignments []assignment,
) error {
	sets := []string{"stage = $1", "updated_at = $2", "version = version + 1"}
	args := []any{upd.Stage, time.Now()}

	for _, a := range assignments {
		if !r.knownOptional[a.column] {
			return scanerrors.NewSchemaFieldUnknownError(a.column)
		}

		args = append(args, a.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.column, len(args)))
	}

	args = append(args, upd.ID, expectedVersion)
	query := fmt.Sprintf(
		"UPDATE scans SET %s WHERE id = $%d AND version = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scans stage update: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scans WHERE id = $1)`, upd.ID).Scan(&exists); err != nil {
		return fmt.Errorf("scans existence check: %w", err)
	}

	if exists {
		return scanerrors.NewStaleWriteError(upd.ID.String(), expectedVersion)
	}

	return scanerrors.NewNotFoundError("scan", "")
}

// Get returns one scan record. Enrichment columns missing from the schema are
// simply absent from the result rather than failing the read.
func (r *ScansRepository) Get(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	columns, known := r.selectColumns()

	var rec models.ScanRecord

	targets, finish := scanTargets(&rec, known)

	err := r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM scans WHERE id = $1", strings.Join(columns, ", ")),
		scanID,
	).Scan(targets...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scanerrors.NewNotFoundError("scan", "")
		}

		return nil, fmt.Errorf("scans get: %w", err)
	}

	if err := finish(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// List returns scan records matching the filters plus the total count.
func (r *ScansRepository) List(ctx context.Context, filters models.ListScansFilters) ([]models.ScanRecord, int64, error) {
	var (
		where []string
		args  []any
	)

	if filters.OwnerID != nil {
		args = append(args, *filters.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	if filters.Stage != nil {
		args = append(args, *filters.Stage)
		where = append(where, fmt.Sprintf("stage = $%d", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM scans"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scans: %w", err)
	}

	columns, known := r.selectColumns()

	args = append(args, filters.Limit)
	limitPos := len(args)
	args = append(args, filters.Offset)

	query := fmt.Sprintf(
		"SELECT %s FROM scans%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		strings.Join(columns, ", "), whereClause, limitPos, limitPos+1,
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("scans list: %w", err)
	}
	defer rows.Close()

	var out []models.ScanRecord

	for rows.Next() {
		var rec models.ScanRecord

		targets, finish := scanTargets(&rec, known)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("scan scan record: %w", err)
		}

		if err := finish(); err != nil {
			return nil, 0, err
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating scans: %w", err)
	}

	return out, total, nil
}

// selectColumns returns the SELECT list (required columns plus the known
// optional ones) and the known optional columns in order.
func (r *ScansRepository) selectColumns() (columns, knownOptional []string) {
	columns = append(columns, requiredColumns...)

	for _, col := range optionalColumns {
		if r.knownOptional[col] {
			columns = append(columns, col)
			knownOptional = append(knownOptional, col)
		}
	}

	return columns, knownOptional
}

// scanTargets builds scan destinations for the required columns followed by
// the given optional columns. finish unmarshals the jsonb payloads after Scan.
func scanTargets(rec *models.ScanRecord, optional []string) (targets []any, finish func() error) {
	targets = []any{
		&rec.ID, &rec.OwnerID, &rec.Stage, &rec.Version, &rec.ImageRef, &rec.CreatedAt, &rec.UpdatedAt,
	}

	var packagingRaw, labelRaw, candidatesRaw, decisionRaw []byte

	for _, col := range optional {
		switch col {
		case "ocr_text":
			targets = append(targets, &rec.OCRText)
		case "packaging":
			targets = append(targets, &packagingRaw)
		case "label":
			targets = append(targets, &labelRaw)
		case "candidates":
			targets = append(targets, &candidatesRaw)
		case "decision":
			targets = append(targets, &decisionRaw)
		case "summary":
			targets = append(targets, &rec.Summary)
		case "failed_stage":
			targets = append(targets, &rec.FailedStage)
		case "error_detail":
			targets = append(targets, &rec.ErrorDetail)
		}
	}

	finish = func() error {
		for _, f := range []struct {
			name string
			raw  []byte
			dst  any
		}{
			{"packaging", packagingRaw, &rec.Packaging},
			{"label", labelRaw, &rec.Label},
			{"candidates", candidatesRaw, &rec.Candidates},
			{"decision", decisionRaw, &rec.Decision},
		} {
			if len(f.raw) == 0 {
				continue
			}

			if err := json.Unmarshal(f.raw, f.dst); err != nil {
				return fmt.Errorf("unmarshal %s: %w", f.name, err)
			}
		}

		return nil
	}

	return targets, finish
}
