// Package extract derives the optional metadata stored next to an upload:
// pixel dimensions, video duration, a video thumbnail frame and the tiny
// blurred placeholders shown while the real asset loads.
//
// Extraction is best effort. Nothing in here returns an error that should
// fail an upload; a step that cannot run leaves its fields empty.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	_ "golang.org/x/image/webp"
)

const (
	blurWidth   = 10
	blurQuality = 50
	blurPrefix  = "data:image/jpeg;base64,"

	// The thumbnail frame is taken 10% into the clip but never later than 1s.
	thumbnailDivisor = 10
	thumbnailMaxAt   = time.Second
)

// ImageMeta is what Image reports. Zero values mean unknown.
type ImageMeta struct {
	Width  int
	Height int
	Blur   string
}

// VideoMeta is what Video reports. Nil or empty fields mean unknown.
type VideoMeta struct {
	Width         int
	Height        int
	Duration      *int
	Thumbnail     []byte
	ThumbnailBlur string
}

// Extractor runs the per-kind extraction steps.
type Extractor struct {
	prober Prober
	log    *zap.Logger
}

// New returns an Extractor. A nil prober disables video extraction and a nil
// logger discards debug output.
func New(prober Prober, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{prober: prober, log: log}
}

// Image decodes r and reports its oriented dimensions and blur placeholder.
func (e *Extractor) Image(r io.Reader) ImageMeta {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		e.log.Debug("image decode failed", zap.Error(err))
		return ImageMeta{}
	}
	b := img.Bounds()
	meta := ImageMeta{Width: b.Dx(), Height: b.Dy()}
	if blur, err := Blur(img); err == nil {
		meta.Blur = blur
	} else {
		e.log.Debug("blur failed", zap.Error(err))
	}
	return meta
}

// Video probes the file at path and grabs its thumbnail frame.
func (e *Extractor) Video(ctx context.Context, path string) VideoMeta {
	var meta VideoMeta
	if e.prober == nil {
		return meta
	}

	var duration time.Duration
	probe, err := e.prober.Probe(ctx, path)
	if err != nil {
		e.log.Debug("video probe failed", zap.String("path", path), zap.Error(err))
	} else {
		meta.Width, meta.Height = probe.Width, probe.Height
		if probe.Duration > 0 {
			secs := int(math.Round(probe.Duration.Seconds()))
			meta.Duration = &secs
			duration = probe.Duration
		}
	}

	frame, err := e.prober.Frame(ctx, path, ThumbnailOffset(duration))
	if err != nil || len(frame) == 0 {
		e.log.Debug("thumbnail frame failed", zap.String("path", path), zap.Error(err))
		return meta
	}
	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		e.log.Debug("thumbnail decode failed", zap.Error(err))
		return meta
	}
	meta.Thumbnail = frame
	if blur, err := Blur(img); err == nil {
		meta.ThumbnailBlur = blur
	}
	return meta
}

// VideoFromReader spools r to a temporary file, runs Video on it and removes
// the file again on every path.
func (e *Extractor) VideoFromReader(ctx context.Context, r io.Reader) VideoMeta {
	if e.prober == nil {
		return VideoMeta{}
	}
	tmp, err := os.CreateTemp("", "mediavault-video-*")
	if err != nil {
		e.log.Debug("create temp file failed", zap.Error(err))
		return VideoMeta{}
	}
	defer os.Remove(tmp.Name())

	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		e.log.Debug("spool video failed", zap.NamedError("copy", copyErr), zap.NamedError("close", closeErr))
		return VideoMeta{}
	}
	return e.Video(ctx, tmp.Name())
}

// ThumbnailOffset is where the thumbnail frame is taken for a clip of the
// given duration. An unknown duration takes the first frame.
func ThumbnailOffset(duration time.Duration) time.Duration {
	if duration <= 0 {
		return 0
	}
	at := duration / thumbnailDivisor
	if at > thumbnailMaxAt {
		return thumbnailMaxAt
	}
	return at
}

// Blur renders img 10px wide, keeping the aspect ratio, and returns it as a
// low quality JPEG data URL.
func Blur(img image.Image) (string, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return "", fmt.Errorf("blur: empty image")
	}
	height := int(math.Round(float64(b.Dy()) / float64(b.Dx()) * blurWidth))
	if height < 1 {
		height = 1
	}
	small := imaging.Resize(img, blurWidth, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(blurQuality)); err != nil {
		return "", fmt.Errorf("blur: encode: %w", err)
	}
	return blurPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
