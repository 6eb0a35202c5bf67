// Package client calls the vault's HTTP procedures. *Client satisfies
// upload.Procedures, so the upload pipeline runs unchanged against a remote
// server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

// APIError is a non-success response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

var codeErrors = map[string]error{
	"INVALID_REQUEST":  apperr.ErrInvalidInput,
	"NOT_UPLOADED":     apperr.ErrNotUploaded,
	"UNAUTHORIZED":     apperr.ErrUnauthorized,
	"FORBIDDEN":        apperr.ErrForbidden,
	"NOT_FOUND":        apperr.ErrNotFound,
	"CONFLICT":         apperr.ErrConflict,
	"TOO_LARGE":        apperr.ErrTooLarge,
	"UNSUPPORTED_TYPE": apperr.ErrUnsupportedType,
}

// Unwrap exposes the matching apperr sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error { return codeErrors[e.Code] }

// Client is a typed caller of /v1/media.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New returns a Client for the server at baseURL authenticating with token.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "BAD_RESPONSE", Message: fmt.Sprintf("decode response: %v", err)}
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) PresignUpload(ctx context.Context, req model.PresignRequest) (*model.PresignedUpload, error) {
	var out model.PresignedUpload
	if err := c.do(ctx, http.MethodPost, "/v1/media/presign", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PresignCustomKey(ctx context.Context, req model.CustomKeyRequest) (*model.PresignedUpload, error) {
	var out model.PresignedUpload
	if err := c.do(ctx, http.MethodPost, "/v1/media/presign/custom", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetMediaURL(ctx context.Context, key string) (*model.MediaURL, error) {
	var out model.MediaURL
	if err := c.do(ctx, http.MethodGet, "/v1/media/url", url.Values{"key": {key}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Save(ctx context.Context, in model.SaveMediaInput) (*model.MediaRecord, error) {
	var out model.MediaRecord
	if err := c.do(ctx, http.MethodPost, "/v1/media", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches one page of the caller's media.
func (c *Client) List(ctx context.Context, f model.ListFilter) ([]model.MediaView, error) {
	q := url.Values{}
	if f.MediaType != "" {
		q.Set("mediaType", string(f.MediaType))
	}
	if f.Limit != 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset != 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.ShowFavorites {
		q.Set("showFavorites", "true")
	}
	var out []model.MediaView
	if err := c.do(ctx, http.MethodGet, "/v1/media", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*model.MediaView, error) {
	var out model.MediaView
	if err := c.do(ctx, http.MethodGet, "/v1/media/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleFavorite(ctx context.Context, id string) (*model.MediaRecord, error) {
	var out model.MediaRecord
	if err := c.do(ctx, http.MethodPost, "/v1/media/"+url.PathEscape(id)+"/favorite", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) (*model.MediaRecord, error) {
	var out model.MediaRecord
	if err := c.do(ctx, http.MethodDelete, "/v1/media/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Download(ctx context.Context, id string) (*model.DownloadLink, error) {
	var out model.DownloadLink
	if err := c.do(ctx, http.MethodPost, "/v1/media/"+url.PathEscape(id)+"/download", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetch streams the object behind a signed URL into w.
func (c *Client) Fetch(ctx context.Context, signedURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch object: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, &APIError{Status: resp.StatusCode, Code: "FETCH_FAILED", Message: strings.TrimSpace(string(msg))}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("fetch object: %w", err)
	}
	return n, nil
}
