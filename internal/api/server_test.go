package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dharsanguruparan/mediavault/internal/api"
	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/auth"
	"github.com/dharsanguruparan/mediavault/internal/client"
	"github.com/dharsanguruparan/mediavault/internal/extract"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/model"
	"github.com/dharsanguruparan/mediavault/internal/queue"
	"github.com/dharsanguruparan/mediavault/internal/service"
	"github.com/dharsanguruparan/mediavault/internal/storage"
	"github.com/dharsanguruparan/mediavault/internal/transport"
	"github.com/dharsanguruparan/mediavault/internal/upload"
	"github.com/dharsanguruparan/mediavault/internal/worker"
)

type vault struct {
	srv     *httptest.Server
	tokens  *auth.Tokens
	objects *storage.DiskObjects
	repo    *storage.MemoryStore
}

// newVault runs the whole server in process: gin API, in memory records and
// signed local object storage behind the same listener.
func newVault(t *testing.T) *vault {
	t.Helper()
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	log := zaptest.NewLogger(t)
	objects, err := storage.NewDiskObjects(t.TempDir(), srv.URL+"/objects", []byte("object-secret"))
	require.NoError(t, err)
	repo := storage.NewMemoryStore()
	tokens := auth.NewTokens([]byte("jwt-secret"), time.Hour)
	svc := service.NewMediaService(repo, objects, service.Options{Logger: log})
	handler = api.New(svc, tokens, api.Options{AppMode: "test", Objects: objects, Logger: log}).Handler()

	return &vault{srv: srv, tokens: tokens, objects: objects, repo: repo}
}

func (v *vault) client(t *testing.T, user string) *client.Client {
	t.Helper()
	token, _, err := v.tokens.Issue(user)
	require.NoError(t, err)
	return client.New(v.srv.URL, token, v.srv.Client())
}

type fixedProber struct{ frame []byte }

func (p fixedProber) Probe(context.Context, string) (extract.Probe, error) {
	return extract.Probe{Width: 1280, Height: 720, Duration: 3 * time.Second}, nil
}

func (p fixedProber) Frame(context.Context, string, time.Duration) ([]byte, error) {
	return p.frame, nil
}

func (v *vault) uploader(t *testing.T, c *client.Client, prober extract.Prober) *upload.Uploader {
	log := zaptest.NewLogger(t)
	return upload.New(c, transport.New(v.srv.Client()), extract.New(prober, log), log)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestHealthAndAuth(t *testing.T) {
	v := newVault(t)

	resp, err := http.Get(v.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, err = http.Get(v.srv.URL + "/v1/media")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var env api.Response[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	_, err = client.New(v.srv.URL, "garbage", nil).List(context.Background(), model.ListFilter{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestImageRoundTrip(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	c := v.client(t, "alice")
	data := pngBytes(t, 64, 48)

	title := "Beach"
	rec, err := v.uploader(t, c, nil).UploadFile(ctx, upload.FromBytes("beach.png", "image/png", data), upload.Options{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, media.KindImage, rec.MediaType)
	assert.Equal(t, "alice", rec.UserID)
	require.NotNil(t, rec.Width)
	assert.Equal(t, 64, *rec.Width)
	assert.Equal(t, 48, *rec.Height)
	require.NotNil(t, rec.Blur)
	assert.True(t, strings.HasPrefix(*rec.Blur, "data:image/jpeg;base64,"))

	list, err := c.List(ctx, model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEqual(t, rec.S3Key, list[0].URL)
	assert.Nil(t, list[0].ThumbnailURL)

	var got bytes.Buffer
	_, err = c.Fetch(ctx, list[0].URL, &got)
	require.NoError(t, err)
	assert.Equal(t, data, got.Bytes())

	link, err := c.Download(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "beach.png", link.Filename)
	resp, err := http.Get(link.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
}

func TestVideoThumbnail(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	c := v.client(t, "alice")
	clip := []byte("not really an mp4 but the prober is stubbed")

	rec, err := v.uploader(t, c, fixedProber{frame: jpegBytes(t, 32, 18)}).
		UploadFile(ctx, upload.FromBytes("clip.mp4", "video/mp4", clip), upload.Options{})
	require.NoError(t, err)
	require.NotNil(t, rec.ThumbnailS3Key)
	assert.Equal(t, media.ThumbnailKey(rec.S3Key), *rec.ThumbnailS3Key)
	require.NotNil(t, rec.Duration)
	assert.Equal(t, 3, *rec.Duration)

	view, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, view.ThumbnailURL)

	// without a frame the video still saves, just without a thumbnail
	rec, err = v.uploader(t, c, fixedProber{}).
		UploadFile(ctx, upload.FromBytes("other.mp4", "video/mp4", clip), upload.Options{})
	require.NoError(t, err)
	assert.Nil(t, rec.ThumbnailS3Key)
}

func TestBatchTallies(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	c := v.client(t, "alice")

	files := []upload.File{
		upload.FromBytes("a.png", "image/png", pngBytes(t, 4, 4)),
		upload.FromBytes("notes.txt", "text/plain", []byte("hello")),
		upload.FromBytes("b.png", "image/png", pngBytes(t, 8, 8)),
		upload.FromBytes("empty.png", "image/png", nil),
	}
	report := v.uploader(t, c, nil).UploadBatch(ctx, files, upload.BatchOptions{Concurrency: 2})
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Results, len(files))
	assert.Equal(t, "2 uploaded, 2 failed", report.Summary())

	list, err := c.List(ctx, model.ListFilter{MediaType: model.KindImage})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFavoriteAndDelete(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	alice := v.client(t, "alice")
	bob := v.client(t, "bob")

	rec, err := v.uploader(t, alice, nil).UploadFile(ctx, upload.FromBytes("a.png", "image/png", pngBytes(t, 4, 4)), upload.Options{})
	require.NoError(t, err)

	fav, err := alice.ToggleFavorite(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, fav.IsFavorite)
	favs, err := alice.List(ctx, model.ListFilter{ShowFavorites: true})
	require.NoError(t, err)
	assert.Len(t, favs, 1)
	fav, err = alice.ToggleFavorite(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, fav.IsFavorite)

	// bob cannot see, touch or delete alice's media
	_, err = bob.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = bob.Delete(ctx, rec.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = bob.GetMediaURL(ctx, rec.S3Key)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	size, err := v.objects.Stat(ctx, rec.S3Key)
	require.NoError(t, err)
	assert.Equal(t, rec.FileSize, size)

	deleted, err := alice.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, deleted.ID)
	assert.Equal(t, rec.S3Key, deleted.S3Key)
	assert.Equal(t, "a.png", deleted.Filename)
	_, err = alice.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = v.objects.Stat(ctx, rec.S3Key)
	assert.ErrorIs(t, err, apperr.ErrNotUploaded)
}

func TestSaveRejectsForeignKey(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	_, err := v.client(t, "mallory").Save(ctx, model.SaveMediaInput{
		S3Key:    "uploads/images/alice/x-a.png",
		Filename: "a.png",
		MimeType: "image/png",
		FileSize: 10,
	})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestListRejectsBadQuery(t *testing.T) {
	v := newVault(t)
	_, err := v.client(t, "alice").List(context.Background(), model.ListFilter{Limit: 500})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

type capturedSweeps struct{ payloads []queue.SweepPayload }

func (c *capturedSweeps) ScheduleSweep(_ context.Context, p queue.SweepPayload, _ time.Duration) error {
	c.payloads = append(c.payloads, p)
	return nil
}

func sweep(t *testing.T, p *worker.Processor, key string) {
	t.Helper()
	task, err := queue.NewSweepTask(queue.SweepPayload{Key: key, OwnerID: "alice"})
	require.NoError(t, err)
	require.NoError(t, p.HandleSweep(context.Background(), task))
}

func TestSweepSparesUploadAwaitingSave(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	c := v.client(t, "alice")
	data := pngBytes(t, 8, 8)

	up, err := c.PresignUpload(ctx, model.PresignRequest{FileName: "late.png", ContentType: "image/png", FileSize: int64(len(data))})
	require.NoError(t, err)
	require.NoError(t, transport.New(v.srv.Client()).Put(ctx, up.URL, bytes.NewReader(data), int64(len(data)), "image/png", nil))

	// the sweep fires after the PUT but before Save
	later := &capturedSweeps{}
	sweep(t, worker.NewProcessor(v.repo, v.objects, later, 10*time.Minute, zaptest.NewLogger(t)), up.Key)
	require.Len(t, later.payloads, 1)
	assert.Equal(t, 1, later.payloads[0].Round)

	rec, err := c.Save(ctx, model.SaveMediaInput{S3Key: up.Key, Filename: "late.png", MimeType: "image/png", FileSize: int64(len(data))})
	require.NoError(t, err)

	// once old, a saved object is kept and an unsaved one is removed
	aged := worker.NewProcessor(v.repo, v.objects, later, 0, zaptest.NewLogger(t))
	sweep(t, aged, rec.S3Key)
	_, err = v.objects.Stat(ctx, rec.S3Key)
	require.NoError(t, err)

	orphan, err := c.PresignUpload(ctx, model.PresignRequest{FileName: "gone.png", ContentType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, transport.New(v.srv.Client()).Put(ctx, orphan.URL, bytes.NewReader(data), int64(len(data)), "image/png", nil))
	sweep(t, aged, orphan.Key)
	_, err = v.objects.Stat(ctx, orphan.Key)
	assert.ErrorIs(t, err, apperr.ErrNotUploaded)
	assert.Len(t, later.payloads, 1)
}

func TestSignedPutRejectsOtherContentType(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()
	c := v.client(t, "alice")

	up, err := c.PresignUpload(ctx, model.PresignRequest{FileName: "a.png", ContentType: "image/png"})
	require.NoError(t, err)
	err = transport.New(v.srv.Client()).Put(ctx, up.URL, strings.NewReader("<html>"), 6, "text/html", nil)
	require.Error(t, err)
	_, err = v.objects.Stat(ctx, up.Key)
	assert.ErrorIs(t, err, apperr.ErrNotUploaded)
}

type brokenStore struct{ api.MediaProcedures }

func (brokenStore) Get(context.Context, string) (*model.MediaView, error) {
	return nil, errors.New("connection reset by peer")
}

func TestInternalErrorHidesCause(t *testing.T) {
	tokens := auth.NewTokens([]byte("jwt-secret"), time.Hour)
	srv := httptest.NewServer(api.New(brokenStore{}, tokens, api.Options{AppMode: "test", Logger: zaptest.NewLogger(t)}).Handler())
	t.Cleanup(srv.Close)
	token, _, err := tokens.Issue("alice")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/media/media_x", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", "req-42")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var env api.Response[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "internal error (request req-42)", env.Error)
	assert.NotContains(t, env.Error, "connection reset")
}
