package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"
)

// Probe is the subset of container metadata the vault stores.
type Probe struct {
	Width    int
	Height   int
	Duration time.Duration
}

// Prober reads video metadata and rasterizes single frames.
type Prober interface {
	Probe(ctx context.Context, path string) (Probe, error)
	// Frame returns the frame at offset as JPEG bytes.
	Frame(ctx context.Context, path string, at time.Duration) ([]byte, error)
}

// ErrNoVideoStream is returned when a file has no video stream.
var ErrNoVideoStream = errors.New("no video stream")

// FFmpeg implements Prober with the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ProbePath  string
	FFmpegPath string
}

// NewFFmpeg returns an FFmpeg prober; empty paths resolve through $PATH.
func NewFFmpeg(probePath, ffmpegPath string) *FFmpeg {
	if probePath == "" {
		probePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{ProbePath: probePath, FFmpegPath: ffmpegPath}
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (Probe, error) {
	cmd := exec.CommandContext(ctx, f.ProbePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return Probe{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out.Bytes())
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(data []byte) (Probe, error) {
	var parsed probeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Probe{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	for _, s := range parsed.Streams {
		if s.CodecType != "video" {
			continue
		}
		p := Probe{Width: s.Width, Height: s.Height}
		raw := parsed.Format.Duration
		if raw == "" {
			raw = s.Duration
		}
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			p.Duration = time.Duration(math.Round(secs*1000)) * time.Millisecond
		}
		return p, nil
	}
	return Probe{}, ErrNoVideoStream
}

func (f *FFmpeg) Frame(ctx context.Context, path string, at time.Duration) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "3",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg frame: empty output")
	}
	return out.Bytes(), nil
}
