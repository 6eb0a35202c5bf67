// Package service implements the vault's server procedures. Every method acts
// on behalf of the caller found in the context and never trusts an owner
// supplied by the client.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/auth"
	"github.com/dharsanguruparan/mediavault/internal/cache"
	"github.com/dharsanguruparan/mediavault/internal/logger"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/model"
	"github.com/dharsanguruparan/mediavault/internal/queue"
)

// Repository persists media records. *repository.MediaRepository and
// *storage.MemoryStore implement it.
type Repository interface {
	Create(ctx context.Context, rec *model.MediaRecord) error
	Get(ctx context.Context, id, ownerID string) (*model.MediaRecord, error)
	List(ctx context.Context, ownerID string, f model.ListFilter) ([]model.MediaRecord, error)
	ToggleFavorite(ctx context.Context, id, ownerID string) (*model.MediaRecord, error)
	Delete(ctx context.Context, id, ownerID string) (*model.MediaRecord, error)
}

// ObjectStore mints URLs for and inspects stored objects. *s3storage.Storage
// and *storage.DiskObjects implement it.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key, filename, contentType string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, key string) (int64, error)
	Remove(ctx context.Context, key string) error
}

// URLCache remembers minted read URLs.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, url string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SweepScheduler enqueues the orphan check for a freshly issued write URL.
type SweepScheduler interface {
	ScheduleSweep(ctx context.Context, p queue.SweepPayload, delay time.Duration) error
}

// Options tunes a MediaService. Zero TTLs fall back to the defaults.
type Options struct {
	PresignPutTTL  time.Duration
	ReadURLTTL     time.Duration
	DownloadURLTTL time.Duration
	SweepDelay     time.Duration

	// Cache and Sweeper are optional.
	Cache   URLCache
	Sweeper SweepScheduler
	Logger  *zap.Logger
}

const (
	defaultPresignPutTTL  = 15 * time.Minute
	defaultReadURLTTL     = time.Hour
	defaultDownloadURLTTL = 5 * time.Minute
	maxBlurLength         = 8 << 10
	maxNameLength         = 255
)

// MediaService implements the media procedures.
type MediaService struct {
	repo    Repository
	objects ObjectStore
	opts    Options
	log     *zap.Logger
}

// NewMediaService wires a service over repo and objects.
func NewMediaService(repo Repository, objects ObjectStore, opts Options) *MediaService {
	if opts.PresignPutTTL <= 0 {
		opts.PresignPutTTL = defaultPresignPutTTL
	}
	if opts.ReadURLTTL <= 0 {
		opts.ReadURLTTL = defaultReadURLTTL
	}
	if opts.DownloadURLTTL <= 0 {
		opts.DownloadURLTTL = defaultDownloadURLTTL
	}
	if opts.SweepDelay <= 0 {
		opts.SweepDelay = opts.PresignPutTTL
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaService{repo: repo, objects: objects, opts: opts, log: log}
}

func caller(ctx context.Context) (string, error) {
	id, ok := auth.UserIDFromContext(ctx)
	if !ok || id == "" {
		return "", apperr.ErrUnauthorized
	}
	return id, nil
}

// PresignUpload issues a write URL for a new asset under the caller's
// namespace.
func (s *MediaService) PresignUpload(ctx context.Context, req model.PresignRequest) (*model.PresignedUpload, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, fmt.Errorf("%w: fileName is required", apperr.ErrInvalidInput)
	}
	kind, ok := media.Classify(req.ContentType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnsupportedType, req.ContentType)
	}
	if req.FileSize < 0 {
		return nil, fmt.Errorf("%w: fileSize must not be negative", apperr.ErrInvalidInput)
	}
	if max := media.MaxFileSize(kind); req.FileSize > max {
		return nil, fmt.Errorf("%w: maximum %dMB for %s", apperr.ErrTooLarge, max>>20, kind.Label())
	}

	key := media.ObjectKey(kind, owner, req.FileName)
	url, err := s.objects.PresignPut(ctx, key, req.ContentType, s.opts.PresignPutTTL)
	if err != nil {
		return nil, err
	}
	s.scheduleSweep(ctx, key, owner)
	return &model.PresignedUpload{URL: url, Key: key, MediaType: kind}, nil
}

// PresignCustomKey issues a write URL for a caller chosen thumbnail key.
func (s *MediaService) PresignCustomKey(ctx context.Context, req model.CustomKeyRequest) (*model.PresignedUpload, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.ContentType != media.ThumbnailContentType {
		return nil, fmt.Errorf("%w: custom keys accept %s only", apperr.ErrUnsupportedType, media.ThumbnailContentType)
	}
	if !strings.HasSuffix(req.Key, ".jpg") {
		return nil, fmt.Errorf("%w: custom key must end in .jpg", apperr.ErrInvalidInput)
	}
	if !media.OwnsKey(req.Key, owner) {
		return nil, fmt.Errorf("custom key: %w", apperr.ErrForbidden)
	}
	url, err := s.objects.PresignPut(ctx, req.Key, req.ContentType, s.opts.PresignPutTTL)
	if err != nil {
		return nil, err
	}
	s.scheduleSweep(ctx, req.Key, owner)
	return &model.PresignedUpload{URL: url, Key: req.Key}, nil
}

func (s *MediaService) scheduleSweep(ctx context.Context, key, owner string) {
	if s.opts.Sweeper == nil {
		return
	}
	err := s.opts.Sweeper.ScheduleSweep(ctx, queue.SweepPayload{Key: key, OwnerID: owner}, s.opts.SweepDelay)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("schedule orphan sweep failed", zap.String("key", key), zap.Error(err))
	}
}

// GetMediaURL mints a read URL for a key in the caller's namespace.
func (s *MediaService) GetMediaURL(ctx context.Context, key string) (*model.MediaURL, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if !media.OwnsKey(key, owner) {
		return nil, apperr.ErrNotFound
	}
	url, err := s.readURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &model.MediaURL{URL: url}, nil
}

// Save persists the record for an uploaded object once the object is
// confirmed to exist with the declared size.
func (s *MediaService) Save(ctx context.Context, in model.SaveMediaInput) (*model.MediaRecord, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	kind, err := s.validateSave(owner, &in)
	if err != nil {
		return nil, err
	}

	size, err := s.objects.Stat(ctx, in.S3Key)
	if err != nil {
		return nil, err
	}
	if size != in.FileSize {
		return nil, fmt.Errorf("%w: stored object is %d bytes, declared %d", apperr.ErrInvalidInput, size, in.FileSize)
	}
	if in.ThumbnailS3Key != nil {
		if _, err := s.objects.Stat(ctx, *in.ThumbnailS3Key); err != nil {
			return nil, fmt.Errorf("thumbnail: %w", err)
		}
	}

	rec := &model.MediaRecord{
		ID:             model.NewMediaID(),
		UserID:         owner,
		S3Key:          in.S3Key,
		Filename:       in.Filename,
		Title:          in.Title,
		Description:    in.Description,
		MediaType:      kind,
		MimeType:       in.MimeType,
		FileSize:       in.FileSize,
		Width:          in.Width,
		Height:         in.Height,
		Blur:           in.Blur,
		Duration:       in.Duration,
		ThumbnailS3Key: in.ThumbnailS3Key,
		ThumbnailBlur:  in.ThumbnailBlur,
		Metadata:       in.Metadata,
		TakenAt:        in.TakenAt,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	// A sweep may have removed the object between Stat and Create.
	if _, err := s.objects.Stat(ctx, in.S3Key); err != nil {
		if _, derr := s.repo.Delete(ctx, rec.ID, owner); derr != nil {
			logger.WithContext(ctx, s.log).Error("roll back record failed", zap.String("media_id", rec.ID), zap.Error(derr))
		}
		return nil, err
	}
	logger.WithContext(ctx, s.log).Info("media saved",
		zap.String("media_id", rec.ID),
		zap.String("media_type", string(kind)),
		zap.Int64("file_size", rec.FileSize),
	)
	return rec, nil
}

// validateSave normalizes in and returns the kind derived from its MIME type.
func (s *MediaService) validateSave(owner string, in *model.SaveMediaInput) (media.Kind, error) {
	kind, ok := media.Classify(in.MimeType)
	if !ok {
		return "", fmt.Errorf("%w: %q", apperr.ErrUnsupportedType, in.MimeType)
	}
	if in.MediaType != "" && in.MediaType != kind {
		return "", fmt.Errorf("%w: mediaType %q does not match %s", apperr.ErrInvalidInput, in.MediaType, in.MimeType)
	}
	if !media.OwnsKey(in.S3Key, owner) {
		return "", fmt.Errorf("s3Key: %w", apperr.ErrForbidden)
	}
	if !strings.HasPrefix(in.S3Key, fmt.Sprintf("uploads/%s/", media.Folder(kind))) {
		return "", fmt.Errorf("%w: s3Key is not in the %s folder", apperr.ErrInvalidInput, kind.Label())
	}
	in.Filename = strings.TrimSpace(in.Filename)
	if in.Filename == "" || len(in.Filename) > maxNameLength {
		return "", fmt.Errorf("%w: filename must be 1-%d bytes", apperr.ErrInvalidInput, maxNameLength)
	}
	if in.FileSize <= 0 {
		return "", fmt.Errorf("%w: fileSize must be positive", apperr.ErrInvalidInput)
	}
	if max := media.MaxFileSize(kind); in.FileSize > max {
		return "", fmt.Errorf("%w: maximum %dMB for %s", apperr.ErrTooLarge, max>>20, kind.Label())
	}
	for name, v := range map[string]*int{"width": in.Width, "height": in.Height, "duration": in.Duration} {
		if v != nil && *v < 0 {
			return "", fmt.Errorf("%w: %s must not be negative", apperr.ErrInvalidInput, name)
		}
	}
	for name, v := range map[string]*string{"blur": in.Blur, "thumbnailBlur": in.ThumbnailBlur} {
		if v != nil && len(*v) > maxBlurLength {
			return "", fmt.Errorf("%w: %s is too long", apperr.ErrInvalidInput, name)
		}
	}

	if kind == media.KindImage {
		in.ThumbnailS3Key = nil
		in.ThumbnailBlur = nil
		in.Duration = nil
		return kind, nil
	}
	if in.ThumbnailS3Key != nil {
		thumb := *in.ThumbnailS3Key
		switch {
		case thumb == "":
			in.ThumbnailS3Key = nil
		case thumb == in.S3Key:
			return "", fmt.Errorf("%w: thumbnail key equals asset key", apperr.ErrInvalidInput)
		case !media.OwnsKey(thumb, owner):
			return "", fmt.Errorf("thumbnailS3Key: %w", apperr.ErrForbidden)
		case thumb != media.ThumbnailKey(in.S3Key):
			return "", fmt.Errorf("%w: thumbnailS3Key must be %s", apperr.ErrInvalidInput, media.ThumbnailKey(in.S3Key))
		}
	}
	return kind, nil
}

// NormalizeFilter applies listing defaults and rejects out of range values.
func NormalizeFilter(f model.ListFilter) (model.ListFilter, error) {
	switch f.MediaType {
	case "":
		f.MediaType = model.KindAll
	case model.KindAll, model.KindImage, model.KindVideo:
	default:
		return f, fmt.Errorf("%w: mediaType must be all, image or video", apperr.ErrInvalidInput)
	}
	switch {
	case f.Limit == 0:
		f.Limit = model.DefaultListLimit
	case f.Limit < 0 || f.Limit > model.MaxListLimit:
		return f, fmt.Errorf("%w: limit must be between 1 and %d", apperr.ErrInvalidInput, model.MaxListLimit)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: offset must not be negative", apperr.ErrInvalidInput)
	}
	return f, nil
}

// List returns the caller's records, newest first, each with fresh URLs.
func (s *MediaService) List(ctx context.Context, f model.ListFilter) ([]model.MediaView, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	f, err = NormalizeFilter(f)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.List(ctx, owner, f)
	if err != nil {
		return nil, err
	}
	views := make([]model.MediaView, 0, len(recs))
	for i := range recs {
		v, err := s.view(ctx, &recs[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// Get returns one of the caller's records.
func (s *MediaService) Get(ctx context.Context, id string) (*model.MediaView, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, rec)
}

// ToggleFavorite flips the favorite flag and returns the updated record.
func (s *MediaService) ToggleFavorite(ctx context.Context, id string) (*model.MediaRecord, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ToggleFavorite(ctx, id, owner)
}

// Delete removes the stored object, then its thumbnail, then the record, and
// returns the deleted record. A storage failure stops the sequence and leaves
// the record in place.
func (s *MediaService) Delete(ctx context.Context, id string) (*model.MediaRecord, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	keys := rec.StorageKeys()
	for _, key := range keys {
		if err := s.objects.Remove(ctx, key); err != nil {
			return nil, err
		}
	}
	deleted, err := s.repo.Delete(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Delete(ctx, keys...); err != nil {
			logger.WithContext(ctx, s.log).Warn("evict cached urls failed", zap.Error(err))
		}
	}
	logger.WithContext(ctx, s.log).Info("media deleted", zap.String("media_id", id))
	return deleted, nil
}

// Download returns a short lived URL that makes the browser save the file
// under its original name.
func (s *MediaService) Download(ctx context.Context, id string) (*model.DownloadLink, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignDownload(ctx, rec.S3Key, rec.Filename, rec.MimeType, s.opts.DownloadURLTTL)
	if err != nil {
		return nil, err
	}
	return &model.DownloadLink{URL: url, Filename: rec.Filename}, nil
}

func (s *MediaService) view(ctx context.Context, rec *model.MediaRecord) (*model.MediaView, error) {
	url, err := s.readURL(ctx, rec.S3Key)
	if err != nil {
		return nil, err
	}
	v := &model.MediaView{MediaRecord: *rec, URL: url}
	if rec.MediaType == media.KindVideo && rec.ThumbnailS3Key != nil {
		thumb, err := s.readURL(ctx, *rec.ThumbnailS3Key)
		if err != nil {
			return nil, err
		}
		v.ThumbnailURL = &thumb
	}
	return v, nil
}

// readURL returns a cached read URL for key or mints and caches a new one.
func (s *MediaService) readURL(ctx context.Context, key string) (string, error) {
	if s.opts.Cache != nil {
		url, ok, err := s.opts.Cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.WithContext(ctx, s.log).Warn("url cache read failed", zap.Error(err))
		case ok:
			return url, nil
		}
	}
	url, err := s.objects.PresignGet(ctx, key, s.opts.ReadURLTTL)
	if err != nil {
		return "", err
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Set(ctx, key, url, cache.EntryTTL(s.opts.ReadURLTTL)); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithContext(ctx, s.log).Warn("url cache write failed", zap.Error(err))
		}
	}
	return url, nil
}
