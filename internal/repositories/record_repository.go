package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pagepress/internal/httpkit"
	"pagepress/internal/models"
)

var (
	ErrRecordNotFound    = errors.New("render record not found")
	ErrRecordPathExists  = errors.New("storage path already recorded")
	ErrRecordOwnerAbsent = errors.New("record owner does not exist")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// RecordRepository stores render audit records. Records are never updated.
type RecordRepository struct {
	db *pgxpool.Pool
}

func NewRecordRepository(db *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, ownerID, sourceURL, storagePath string) (*models.RenderRecord, error) {
	rec := models.RenderRecord{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		SourceURL:   sourceURL,
		StoragePath: storagePath,
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO render_records (id, owner_id, source_url, storage_path)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, rec.ID, rec.OwnerID, rec.SourceURL, rec.StoragePath).Scan(&rec.CreatedAt)
	if err != nil {
		switch {
		case httpkit.IsUniqueViolation(err):
			return nil, ErrRecordPathExists
		case httpkit.IsForeignKeyViolation(err):
			return nil, ErrRecordOwnerAbsent
		}
		return nil, err
	}
	return &rec, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *RecordRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.RenderRecord, error) {
	return r.list(ctx, `
		SELECT id, owner_id, source_url, storage_path, created_at
		FROM render_records
		WHERE owner_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, ownerID, clampLimit(limit))
}

// AllByOwner returns every record of the owner, newest first.
func (r *RecordRepository) AllByOwner(ctx context.Context, ownerID string) ([]models.RenderRecord, error) {
	return r.list(ctx, `
		SELECT id, owner_id, source_url, storage_path, created_at
		FROM render_records
		WHERE owner_id=$1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
}

func (r *RecordRepository) list(ctx context.Context, query string, args ...any) ([]models.RenderRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RenderRecord, 0)
	for rows.Next() {
		var rec models.RenderRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.SourceURL, &rec.StoragePath, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetForOwner returns a record only if it belongs to ownerID.
func (r *RecordRepository) GetForOwner(ctx context.Context, ownerID, id string) (*models.RenderRecord, error) {
	var rec models.RenderRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, source_url, storage_path, created_at
		FROM render_records
		WHERE id=$1 AND owner_id=$2
	`, id, ownerID).Scan(&rec.ID, &rec.OwnerID, &rec.SourceURL, &rec.StoragePath, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// IsReferenced reports whether any record points at storagePath.
func (r *RecordRepository) IsReferenced(ctx context.Context, storagePath string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM render_records WHERE storage_path=$1)`, storagePath,
	).Scan(&exists)
	return exists, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
