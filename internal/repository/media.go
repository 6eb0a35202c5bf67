package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

const uniqueViolation = "23505"

const mediaColumns = `id, user_id, s3_key, filename, title, description, media_type, mime_type,
	file_size, width, height, blur, duration, thumbnail_s3_key, thumbnail_blur, metadata,
	is_public, is_favorite, uploaded_at, updated_at, taken_at`

// MediaRepository wraps all SQL touching the media table. Every read or write
// that takes a record id is scoped to its owner; a row owned by someone else
// looks exactly like a missing one.
type MediaRepository struct {
	pool *pgxpool.Pool
}

// NewMediaRepository constructs a repository.
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

// Create inserts rec, filling in the id and timestamps when unset.
func (r *MediaRepository) Create(ctx context.Context, rec *model.MediaRecord) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = model.NewMediaID()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = now
	}
	rec.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO media (`+mediaColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, rec.ID, rec.UserID, rec.S3Key, rec.Filename, rec.Title, rec.Description, string(rec.MediaType), rec.MimeType,
		rec.FileSize, rec.Width, rec.Height, rec.Blur, rec.Duration, rec.ThumbnailS3Key, rec.ThumbnailBlur, rec.Metadata,
		rec.IsPublic, rec.IsFavorite, rec.UploadedAt, rec.UpdatedAt, rec.TakenAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert media: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// Get returns the record id owned by ownerID.
func (r *MediaRepository) Get(ctx context.Context, id, ownerID string) (*model.MediaRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM media WHERE id=$1 AND user_id=$2`, id, ownerID)
	rec, err := scanMedia(row)
	if err != nil {
		return nil, fmt.Errorf("select media: %w", err)
	}
	return rec, nil
}

// List returns ownerID's records newest first. The filter must already be
// normalized.
func (r *MediaRepository) List(ctx context.Context, ownerID string, f model.ListFilter) ([]model.MediaRecord, error) {
	var (
		sb   strings.Builder
		args = []any{ownerID}
	)
	sb.WriteString(`SELECT ` + mediaColumns + ` FROM media WHERE user_id=$1`)
	if f.MediaType != "" && f.MediaType != model.KindAll {
		args = append(args, string(f.MediaType))
		fmt.Fprintf(&sb, ` AND media_type=$%d`, len(args))
	}
	if f.ShowFavorites {
		sb.WriteString(` AND is_favorite`)
	}
	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&sb, ` ORDER BY uploaded_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	out := make([]model.MediaRecord, 0, f.Limit)
	for rows.Next() {
		rec, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return out, nil
}

// ToggleFavorite flips is_favorite and bumps updated_at.
func (r *MediaRepository) ToggleFavorite(ctx context.Context, id, ownerID string) (*model.MediaRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE media SET is_favorite = NOT is_favorite, updated_at = $3
		WHERE id=$1 AND user_id=$2
		RETURNING `+mediaColumns, id, ownerID, time.Now().UTC())
	rec, err := scanMedia(row)
	if err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	return rec, nil
}

// Delete removes the row and returns it as it was.
func (r *MediaRepository) Delete(ctx context.Context, id, ownerID string) (*model.MediaRecord, error) {
	row := r.pool.QueryRow(ctx, `DELETE FROM media WHERE id=$1 AND user_id=$2 RETURNING `+mediaColumns, id, ownerID)
	rec, err := scanMedia(row)
	if err != nil {
		return nil, fmt.Errorf("delete media: %w", err)
	}
	return rec, nil
}

// KeyReferenced reports whether any record points at key, as its asset or
// its thumbnail.
func (r *MediaRepository) KeyReferenced(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM media WHERE s3_key=$1 OR thumbnail_s3_key=$1)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check key reference: %w", err)
	}
	return exists, nil
}

func scanMedia(row pgx.Row) (*model.MediaRecord, error) {
	var (
		rec  model.MediaRecord
		kind string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.S3Key, &rec.Filename, &rec.Title, &rec.Description, &kind, &rec.MimeType,
		&rec.FileSize, &rec.Width, &rec.Height, &rec.Blur, &rec.Duration, &rec.ThumbnailS3Key, &rec.ThumbnailBlur, &rec.Metadata,
		&rec.IsPublic, &rec.IsFavorite, &rec.UploadedAt, &rec.UpdatedAt, &rec.TakenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	rec.MediaType = media.Kind(kind)
	return &rec, nil
}
