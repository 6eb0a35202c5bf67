package s3storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mediavault/internal/config"
)

// Presigning is computed locally when the region is configured, so these
// tests never talk to a server.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(&config.Config{
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "access",
		S3SecretKey: "secret",
		S3Bucket:    "mediavault",
		S3Region:    "us-east-1",
	})
	require.NoError(t, err)
	return s
}

func TestPresignPut(t *testing.T) {
	s := newTestStorage(t)
	raw, err := s.PresignPut(context.Background(), "uploads/images/u1/abc-a.png", "image/png", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/mediavault/uploads/images/u1/abc-a.png", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestPresignDownloadCarriesDisposition(t *testing.T) {
	s := newTestStorage(t)
	raw, err := s.PresignDownload(context.Background(), "uploads/videos/u1/x.mp4", "férias 2024.mp4", "video/mp4", 5*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "300", q.Get("X-Amz-Expires"))
	assert.Equal(t, "video/mp4", q.Get("response-content-type"))
	assert.Contains(t, q.Get("response-content-disposition"), "attachment;")
	assert.Contains(t, q.Get("response-content-disposition"), "f%C3%A9rias%202024.mp4")
}
