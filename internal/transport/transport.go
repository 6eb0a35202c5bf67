// Package transport moves upload bytes straight to object storage with a
// single HTTP PUT against a presigned URL.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/dharsanguruparan/mediavault/internal/model"
)

// ProgressFunc receives a snapshot after every chunk read from the body.
type ProgressFunc func(model.UploadProgress)

// ErrAborted is returned when the caller's context ends the transfer.
var ErrAborted = errors.New("upload aborted")

// StatusError is returned when storage answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload failed with status %d: %s", e.StatusCode, e.Body)
}

// NetworkError wraps connectivity failures.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error during upload: " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// Client performs the PUTs. The zero value uses http.DefaultClient.
type Client struct {
	HTTP *http.Client
}

// New returns a Client using hc, or http.DefaultClient when hc is nil.
func New(hc *http.Client) *Client {
	return &Client{HTTP: hc}
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

// errBodyLimit caps how much of an error response is kept for messages.
const errBodyLimit = 512

// Put uploads size bytes from body to url. It resolves on any 2xx response
// and never retries.
func (c *Client) Put(ctx context.Context, url string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) error {
	pr := &progressReader{r: body, total: size, fn: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, pr)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	if size == 0 {
		req.Body = http.NoBody
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu     sync.Mutex
	loaded int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.mu.Lock()
		p.loaded += int64(n)
		snap := model.NewUploadProgress(p.loaded, p.total)
		p.mu.Unlock()
		p.fn(snap)
	}
	return n, err
}
