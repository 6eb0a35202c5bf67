package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func decodeBlur(t *testing.T, blur string) image.Image {
	t.Helper()
	require.True(t, strings.HasPrefix(blur, blurPrefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blur, blurPrefix))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestBlurKeepsAspectRatio(t *testing.T) {
	tests := []struct {
		w, h       int
		wantHeight int
	}{
		{w: 200, h: 100, wantHeight: 5},
		{w: 100, h: 300, wantHeight: 30},
		{w: 1000, h: 10, wantHeight: 1},
	}
	for _, tt := range tests {
		blur, err := Blur(solid(tt.w, tt.h))
		require.NoError(t, err)
		b := decodeBlur(t, blur).Bounds()
		assert.Equal(t, blurWidth, b.Dx())
		assert.Equal(t, tt.wantHeight, b.Dy())
	}
}

func TestImageReportsDimensions(t *testing.T) {
	e := New(nil, zaptest.NewLogger(t))
	meta := e.Image(bytes.NewReader(encodePNG(t, solid(64, 48))))
	assert.Equal(t, 64, meta.Width)
	assert.Equal(t, 48, meta.Height)
	assert.NotEmpty(t, meta.Blur)
}

func TestImageDecodeFailureIsNotFatal(t *testing.T) {
	e := New(nil, nil)
	meta := e.Image(strings.NewReader("definitely not an image"))
	assert.Equal(t, ImageMeta{}, meta)
}

func TestThumbnailOffset(t *testing.T) {
	assert.Equal(t, time.Duration(0), ThumbnailOffset(0))
	assert.Equal(t, 500*time.Millisecond, ThumbnailOffset(5*time.Second))
	assert.Equal(t, time.Second, ThumbnailOffset(90*time.Second))
}

type fakeProber struct {
	probe    Probe
	probeErr error
	frame    []byte
	frameErr error

	paths []string
	at    time.Duration
}

func (f *fakeProber) Probe(_ context.Context, path string) (Probe, error) {
	f.paths = append(f.paths, path)
	return f.probe, f.probeErr
}

func (f *fakeProber) Frame(_ context.Context, path string, at time.Duration) ([]byte, error) {
	f.at = at
	return f.frame, f.frameErr
}

func TestVideo(t *testing.T) {
	frame := encodeJPEG(t, solid(160, 90))
	p := &fakeProber{
		probe: Probe{Width: 1920, Height: 1080, Duration: 4600 * time.Millisecond},
		frame: frame,
	}
	meta := New(p, zaptest.NewLogger(t)).Video(context.Background(), "clip.mp4")

	assert.Equal(t, 1920, meta.Width)
	assert.Equal(t, 1080, meta.Height)
	require.NotNil(t, meta.Duration)
	assert.Equal(t, 5, *meta.Duration)
	assert.Equal(t, 460*time.Millisecond, p.at)
	assert.Equal(t, frame, meta.Thumbnail)
	assert.NotEmpty(t, meta.ThumbnailBlur)
}

func TestVideoDegradesPerStep(t *testing.T) {
	t.Run("probe fails", func(t *testing.T) {
		p := &fakeProber{probeErr: errors.New("boom"), frame: encodeJPEG(t, solid(8, 8))}
		meta := New(p, nil).Video(context.Background(), "clip.mp4")
		assert.Nil(t, meta.Duration)
		assert.Zero(t, meta.Width)
		assert.NotEmpty(t, meta.Thumbnail)
	})
	t.Run("frame fails", func(t *testing.T) {
		p := &fakeProber{probe: Probe{Width: 10, Height: 10, Duration: time.Second}, frameErr: errors.New("decode error")}
		meta := New(p, nil).Video(context.Background(), "clip.mp4")
		require.NotNil(t, meta.Duration)
		assert.Nil(t, meta.Thumbnail)
		assert.Empty(t, meta.ThumbnailBlur)
	})
	t.Run("frame is not an image", func(t *testing.T) {
		p := &fakeProber{frame: []byte("garbage")}
		meta := New(p, nil).Video(context.Background(), "clip.mp4")
		assert.Nil(t, meta.Thumbnail)
	})
	t.Run("no prober", func(t *testing.T) {
		assert.Equal(t, VideoMeta{}, New(nil, nil).Video(context.Background(), "clip.mp4"))
	})
}

func TestVideoFromReaderRemovesTempFile(t *testing.T) {
	p := &fakeProber{probe: Probe{Width: 2, Height: 2}, frameErr: errors.New("no frame")}
	meta := New(p, nil).VideoFromReader(context.Background(), strings.NewReader("fake video bytes"))
	assert.Equal(t, 2, meta.Width)

	require.Len(t, p.paths, 1)
	_, err := os.Stat(p.paths[0])
	assert.True(t, os.IsNotExist(err), "temp file should be removed")
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "audio", "duration": "12.0"},
			{"codec_type": "video", "width": 1280, "height": 720, "duration": "12.4"}
		],
		"format": {"duration": "12.52"}
	}`)
	p, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 1280, p.Width)
	assert.Equal(t, 720, p.Height)
	assert.Equal(t, 12520*time.Millisecond, p.Duration)

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"audio"}]}`))
	assert.ErrorIs(t, err, ErrNoVideoStream)

	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}
