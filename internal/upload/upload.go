// Package upload drives a file through the vault's two-phase upload: validate
// locally, obtain a presigned write URL, PUT the bytes to storage, extract
// metadata (uploading a thumbnail for videos) and finally persist the record.
//
// Each file moves through the stages strictly in order. A failure at any
// stage ends that file in StageFailed; in a batch the remaining files are
// still attempted.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/extract"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/model"
	"github.com/dharsanguruparan/mediavault/internal/transport"
)

// Stage is a step of the per-file state machine.
type Stage string

const (
	StageIdle                  Stage = "idle"
	StageValidating            Stage = "validating"
	StageRequestingURL         Stage = "requesting-url"
	StageTransferring          Stage = "transferring"
	StageExtractingMetadata    Stage = "extracting-metadata"
	StageTransferringThumbnail Stage = "transferring-thumbnail"
	StagePersisting            Stage = "persisting"
	StageDone                  Stage = "done"
	StageFailed                Stage = "failed"
)

// State is the ephemeral UploadState of one file.
type State struct {
	Stage     Stage
	Uploading bool
	Progress  *model.UploadProgress
	Err       string
}

// Procedures is the server surface the pipeline needs.
type Procedures interface {
	PresignUpload(ctx context.Context, req model.PresignRequest) (*model.PresignedUpload, error)
	PresignCustomKey(ctx context.Context, req model.CustomKeyRequest) (*model.PresignedUpload, error)
	Save(ctx context.Context, in model.SaveMediaInput) (*model.MediaRecord, error)
}

// Transport performs the storage PUT. *transport.Client implements it.
type Transport interface {
	Put(ctx context.Context, url string, body io.Reader, size int64, contentType string, onProgress transport.ProgressFunc) error
}

// Extractor derives optional metadata. *extract.Extractor implements it.
type Extractor interface {
	Image(r io.Reader) extract.ImageMeta
	Video(ctx context.Context, path string) extract.VideoMeta
	VideoFromReader(ctx context.Context, r io.Reader) extract.VideoMeta
}

// File describes one input. Content comes from Open when set, otherwise
// from the file at Path.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Path        string
	Open        func() (io.ReadCloser, error)
}

// FromPath describes the local file at path.
func FromPath(path, contentType string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Path:        path,
	}, nil
}

// FromBytes describes an in-memory file.
func FromBytes(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

var errNoContent = errors.New("file has no content source")

func (f File) open() (io.ReadCloser, error) {
	switch {
	case f.Open != nil:
		return f.Open()
	case f.Path != "":
		return os.Open(f.Path)
	}
	return nil, errNoContent
}

// Options replaces the optional callback bag of a single upload. Every field
// may be left zero.
type Options struct {
	Title       *string
	Description *string

	OnProgress func(model.UploadProgress)
	OnStage    func(Stage)
	OnSuccess  func(*model.MediaRecord)
	OnError    func(error)
}

// Uploader runs the pipeline.
type Uploader struct {
	procs     Procedures
	transport Transport
	extractor Extractor
	log       *zap.Logger
	tracker   *Tracker

	mu    sync.Mutex
	state State
}

// New wires an Uploader. A nil extractor skips metadata extraction and a nil
// logger discards output.
func New(procs Procedures, tr Transport, ex Extractor, log *zap.Logger) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{
		procs:     procs,
		transport: tr,
		extractor: ex,
		log:       log,
		tracker:   NewTracker(),
		state:     State{Stage: StageIdle},
	}
}

// Tracker exposes the per-file states of batch uploads.
func (u *Uploader) Tracker() *Tracker { return u.tracker }

// State returns the state of the most recent UploadFile call.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Reset clears the single-file state.
func (u *Uploader) Reset() {
	u.mu.Lock()
	u.state = State{Stage: StageIdle}
	u.mu.Unlock()
}

func (u *Uploader) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

// UploadFile uploads one file and returns the persisted record.
func (u *Uploader) UploadFile(ctx context.Context, f File, opts Options) (*model.MediaRecord, error) {
	return u.run(ctx, f, opts, u.setState)
}

// run guards a file's state; progress callbacks may arrive from the HTTP
// client's writer goroutine.
type run struct {
	mu     sync.Mutex
	state  State
	report func(State)
	opts   Options
}

func (r *run) update(fn func(*State)) {
	r.mu.Lock()
	fn(&r.state)
	s := r.state
	r.mu.Unlock()
	r.report(s)
}

func (r *run) stage(s Stage) {
	r.update(func(st *State) { st.Stage = s })
	if r.opts.OnStage != nil {
		r.opts.OnStage(s)
	}
}

func (u *Uploader) run(ctx context.Context, f File, opts Options, report func(State)) (*model.MediaRecord, error) {
	r := &run{report: report, opts: opts}
	log := u.log.With(zap.String("file", f.Name))

	fail := func(err error) (*model.MediaRecord, error) {
		r.update(func(st *State) {
			*st = State{Stage: StageFailed, Err: err.Error()}
		})
		if opts.OnStage != nil {
			opts.OnStage(StageFailed)
		}
		if opts.OnError != nil {
			opts.OnError(err)
		}
		log.Warn("upload failed", zap.Error(err))
		return nil, err
	}

	r.stage(StageValidating)
	if err := media.ValidateFile(f.ContentType, f.Size); err != nil {
		return fail(err)
	}
	kind, _ := media.Classify(f.ContentType)

	r.update(func(st *State) {
		st.Uploading = true
		st.Progress = &model.UploadProgress{Total: f.Size}
	})

	r.stage(StageRequestingURL)
	presigned, err := u.procs.PresignUpload(ctx, model.PresignRequest{
		FileName:    f.Name,
		ContentType: f.ContentType,
		FileSize:    f.Size,
	})
	if err != nil {
		return fail(fmt.Errorf("request upload url: %w", err))
	}

	r.stage(StageTransferring)
	err = u.put(ctx, presigned.URL, f, func(p model.UploadProgress) {
		r.update(func(st *State) { st.Progress = &p })
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	})
	if err != nil {
		return fail(err)
	}

	in := model.SaveMediaInput{
		S3Key:       presigned.Key,
		Filename:    f.Name,
		Title:       opts.Title,
		Description: opts.Description,
		MediaType:   kind,
		MimeType:    f.ContentType,
		FileSize:    f.Size,
	}

	r.stage(StageExtractingMetadata)
	switch kind {
	case media.KindImage:
		meta := u.imageMeta(f)
		in.Width, in.Height = positive(meta.Width), positive(meta.Height)
		in.Blur = nonEmpty(meta.Blur)
	case media.KindVideo:
		meta := u.videoMeta(ctx, f)
		in.Width, in.Height = positive(meta.Width), positive(meta.Height)
		in.Duration = meta.Duration
		if len(meta.Thumbnail) > 0 {
			thumbKey := media.ThumbnailKey(presigned.Key)
			r.stage(StageRequestingURL)
			thumb, err := u.procs.PresignCustomKey(ctx, model.CustomKeyRequest{
				Key:         thumbKey,
				ContentType: media.ThumbnailContentType,
			})
			if err != nil {
				return fail(fmt.Errorf("request thumbnail url: %w", err))
			}
			r.stage(StageTransferringThumbnail)
			err = u.transport.Put(ctx, thumb.URL, bytes.NewReader(meta.Thumbnail), int64(len(meta.Thumbnail)), media.ThumbnailContentType, nil)
			if err != nil {
				return fail(fmt.Errorf("upload thumbnail: %w", err))
			}
			in.ThumbnailS3Key = &thumbKey
			in.ThumbnailBlur = nonEmpty(meta.ThumbnailBlur)
		}
	}

	r.stage(StagePersisting)
	rec, err := u.procs.Save(ctx, in)
	if err != nil {
		return fail(fmt.Errorf("save media: %w", err))
	}

	r.update(func(st *State) { *st = State{Stage: StageDone} })
	if opts.OnStage != nil {
		opts.OnStage(StageDone)
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(rec)
	}
	log.Info("upload complete", zap.String("id", rec.ID), zap.String("key", rec.S3Key))
	return rec, nil
}

func (u *Uploader) put(ctx context.Context, url string, f File, onProgress transport.ProgressFunc) error {
	body, err := f.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer body.Close()
	return u.transport.Put(ctx, url, body, f.Size, f.ContentType, onProgress)
}

func (u *Uploader) imageMeta(f File) extract.ImageMeta {
	if u.extractor == nil {
		return extract.ImageMeta{}
	}
	body, err := f.open()
	if err != nil {
		u.log.Debug("reopen for metadata failed", zap.String("file", f.Name), zap.Error(err))
		return extract.ImageMeta{}
	}
	defer body.Close()
	return u.extractor.Image(body)
}

func (u *Uploader) videoMeta(ctx context.Context, f File) extract.VideoMeta {
	if u.extractor == nil {
		return extract.VideoMeta{}
	}
	if f.Path != "" && f.Open == nil {
		return u.extractor.Video(ctx, f.Path)
	}
	body, err := f.open()
	if err != nil {
		u.log.Debug("reopen for metadata failed", zap.String("file", f.Name), zap.Error(err))
		return extract.VideoMeta{}
	}
	defer body.Close()
	return u.extractor.VideoFromReader(ctx, body)
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
