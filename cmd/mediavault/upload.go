package main

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dharsanguruparan/mediavault/internal/extract"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/transport"
	"github.com/dharsanguruparan/mediavault/internal/upload"
)

func newUploadCmd(v *viper.Viper) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload images and videos",
		Long: fmt.Sprintf("Upload images and videos. Types are detected from file content.\n\nImages: %s\nVideos: %s",
			strings.Join(media.ImageTypes(), ", "), strings.Join(media.VideoTypes(), ", ")),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			log := newLogger(v)

			var prober extract.Prober
			if ffprobe, ffmpeg, ok := lookupFFmpeg(v.GetString("ffprobe"), v.GetString("ffmpeg")); ok {
				prober = extract.NewFFmpeg(ffprobe, ffmpeg)
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "ffprobe/ffmpeg not found: videos upload without dimensions or thumbnails")
			}
			u := upload.New(c, transport.New(nil), extract.New(prober, log), log)

			files := make([]upload.File, 0, len(args))
			var skipped int
			for _, path := range args {
				f, err := describeFile(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
					skipped++
					continue
				}
				files = append(files, f)
			}

			var opts upload.Options
			if title != "" {
				opts.Title = &title
			}
			if description != "" {
				opts.Description = &description
			}
			stopProgress := showProgress(cmd.ErrOrStderr(), u.Tracker())
			report := u.UploadBatch(cmd.Context(), files, upload.BatchOptions{
				Concurrency: v.GetInt("concurrency"),
				Options:     opts,
				OnFileDone:  printResult(cmd.OutOrStdout()),
			})
			stopProgress()
			report.Failed += skipped

			fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			if report.Failed > 0 {
				return errSomeFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title applied to every uploaded file")
	cmd.Flags().StringVar(&description, "description", "", "description applied to every uploaded file")
	cmd.Flags().Int("concurrency", 1, "files uploaded in parallel")
	_ = v.BindPFlag("concurrency", cmd.Flags().Lookup("concurrency"))
	return cmd
}

// describeFile stats path and sniffs its MIME type from the content. Files of
// a type the vault does not accept are refused before any request is made.
func describeFile(path string) (upload.File, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return upload.File{}, fmt.Errorf("detect type: %w", err)
	}
	contentType := baseMIME(mt.String())
	if !media.IsAccepted(contentType) {
		return upload.File{}, fmt.Errorf("%s is not accepted (accepted: %s)", contentType, strings.Join(media.AcceptedTypes(), ", "))
	}
	return upload.FromPath(path, contentType)
}

// baseMIME drops parameters such as "; charset=utf-8".
func baseMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func lookupFFmpeg(ffprobe, ffmpeg string) (string, string, bool) {
	probePath, err := exec.LookPath(ffprobe)
	if err != nil {
		return "", "", false
	}
	ffmpegPath, err := exec.LookPath(ffmpeg)
	if err != nil {
		return "", "", false
	}
	return probePath, ffmpegPath, true
}

// showProgress prints the aggregate byte progress of the tracker until the
// returned func is called.
func showProgress(w io.Writer, t *upload.Tracker) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if t.AnyUploading() {
					p := t.TotalProgress()
					fmt.Fprintf(w, "uploading %d%% (%d/%d bytes)\n", p.Percentage, p.Loaded, p.Total)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func printResult(w io.Writer) func(upload.FileResult) {
	var mu sync.Mutex
	return func(res upload.FileResult) {
		mu.Lock()
		defer mu.Unlock()
		if res.Err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", res.File.Name, res.Err)
			return
		}
		fmt.Fprintf(w, "✓ %s → %s (%s)\n", res.File.Name, res.Record.ID, res.Record.MediaType)
	}
}
