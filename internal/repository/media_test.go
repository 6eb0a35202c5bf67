package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/database"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

// testPool connects to MEDIAVAULT_TEST_DATABASE_URL, skipping without it.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("MEDIAVAULT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MEDIAVAULT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, `DELETE FROM media WHERE user_id LIKE 'repo-test-%'`)
	require.NoError(t, err)
	return pool
}

func newRecord(owner, key string, kind media.Kind, uploaded time.Time) *model.MediaRecord {
	mime := "image/png"
	if kind == media.KindVideo {
		mime = "video/mp4"
	}
	return &model.MediaRecord{
		UserID:     owner,
		S3Key:      key,
		Filename:   "f",
		MediaType:  kind,
		MimeType:   mime,
		FileSize:   10,
		UploadedAt: uploaded,
	}
}

func TestMediaRepositoryLifecycle(t *testing.T) {
	pool := testPool(t)
	repo := NewMediaRepository(pool)
	ctx := context.Background()
	owner, other := "repo-test-a", "repo-test-b"
	base := time.Now().UTC().Truncate(time.Millisecond)

	img := newRecord(owner, "uploads/images/repo-test-a/1-a.png", media.KindImage, base)
	w := 10
	img.Width = &w
	require.NoError(t, repo.Create(ctx, img))
	assert.Regexp(t, `^media_[0-9a-f]{10}$`, img.ID)

	vid := newRecord(owner, "uploads/videos/repo-test-a/2-b.mp4", media.KindVideo, base.Add(time.Second))
	thumb := "uploads/videos/repo-test-a/2-b.jpg"
	vid.ThumbnailS3Key = &thumb
	require.NoError(t, repo.Create(ctx, vid))

	dup := newRecord(owner, img.S3Key, media.KindImage, base)
	assert.ErrorIs(t, repo.Create(ctx, dup), apperr.ErrConflict)

	got, err := repo.Get(ctx, img.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, got.Width)
	assert.Equal(t, 10, *got.Width)
	assert.Nil(t, got.Height)

	_, err = repo.Get(ctx, img.ID, other)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	all, err := repo.List(ctx, owner, model.ListFilter{MediaType: model.KindAll, Limit: 50})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, vid.ID, all[0].ID)

	videos, err := repo.List(ctx, owner, model.ListFilter{MediaType: model.KindVideo, Limit: 50})
	require.NoError(t, err)
	require.Len(t, videos, 1)

	toggled, err := repo.ToggleFavorite(ctx, img.ID, owner)
	require.NoError(t, err)
	assert.True(t, toggled.IsFavorite)
	favs, err := repo.List(ctx, owner, model.ListFilter{MediaType: model.KindAll, Limit: 50, ShowFavorites: true})
	require.NoError(t, err)
	require.Len(t, favs, 1)

	_, err = repo.ToggleFavorite(ctx, img.ID, other)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ok, err := repo.KeyReferenced(ctx, thumb)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Delete(ctx, vid.ID, other)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	deleted, err := repo.Delete(ctx, vid.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, vid.S3Key, deleted.S3Key)

	ok, err = repo.KeyReferenced(ctx, thumb)
	require.NoError(t, err)
	assert.False(t, ok)
}
