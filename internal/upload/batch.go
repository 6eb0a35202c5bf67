package upload

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/mediavault/internal/model"
)

// BatchOptions configures UploadBatch.
type BatchOptions struct {
	// Concurrency bounds how many files are in flight. Values below 2 upload
	// one file at a time, in order.
	Concurrency int
	// Options is applied to every file.
	Options Options
	// OnFileDone is called once per file with its outcome. With Concurrency
	// above 1 it may be called from several goroutines at once.
	OnFileDone func(FileResult)
}

// FileResult is the outcome of one file in a batch.
type FileResult struct {
	ID     FileID
	File   File
	Record *model.MediaRecord
	Err    error
}

// BatchReport tallies a batch. Results keep the input order.
type BatchReport struct {
	Results   []FileResult
	Succeeded int
	Failed    int
}

// Summary is the one line outcome shown to users.
func (r BatchReport) Summary() string {
	return fmt.Sprintf("%d uploaded, %d failed", r.Succeeded, r.Failed)
}

// UploadBatch attempts every file. A failing file is tallied and never stops
// the rest; per-file states are kept in the Uploader's Tracker.
func (u *Uploader) UploadBatch(ctx context.Context, files []File, opts BatchOptions) BatchReport {
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]FileResult, len(files))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, f := range files {
		i, f := i, f
		id := u.tracker.Add()
		g.Go(func() error {
			rec, err := u.run(ctx, f, opts.Options, func(s State) { u.tracker.Set(id, s) })
			results[i] = FileResult{ID: id, File: f, Record: rec, Err: err}
			if opts.OnFileDone != nil {
				opts.OnFileDone(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	report := BatchReport{Results: results}
	for _, res := range results {
		if res.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	return report
}
