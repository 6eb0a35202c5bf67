package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/signing"
)

// DiskObjects is a local stand-in for the S3 bucket. It keeps objects under a
// directory and serves them through HMAC signed URLs with the same shape as
// S3 presigned URLs: the client PUTs or GETs the URL and nothing else.
type DiskObjects struct {
	dir     string
	baseURL string
	prefix  string
	signer  *signing.Signer
	maxSize int64
}

// NewDiskObjects stores objects under dir. baseURL is the public URL the
// store is mounted at, e.g. http://localhost:8080/objects.
func NewDiskObjects(dir, baseURL string, secret []byte) (*DiskObjects, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &DiskObjects{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  strings.TrimRight(u.Path, "/") + "/",
		signer:  signing.NewSigner(secret),
		maxSize: media.MaxVideoSize,
	}, nil
}

// Prefix is the URL path the handler expects to be mounted under.
func (d *DiskObjects) Prefix() string { return d.prefix }

var errBadKey = errors.New("invalid object key")

func (d *DiskObjects) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return "", errBadKey
	}
	return filepath.Join(d.dir, filepath.FromSlash(key)), nil
}

func (d *DiskObjects) presign(t signing.Ticket) string {
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(t.Expires, 10))
	q.Set("signature", d.signer.Sign(t))
	if t.Filename != "" {
		q.Set("filename", t.Filename)
	}
	if t.ContentType != "" {
		q.Set("type", t.ContentType)
	}
	return d.baseURL + "/" + t.Key + "?" + q.Encode()
}

func expiry(ttl time.Duration) int64 { return time.Now().Add(ttl).Unix() }

// PresignPut binds contentType into the URL; the PUT must send it as its
// Content-Type header.
func (d *DiskObjects) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if _, err := d.path(key); err != nil {
		return "", err
	}
	return d.presign(signing.Ticket{Method: http.MethodPut, Key: key, Expires: expiry(ttl), ContentType: contentType}), nil
}

func (d *DiskObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := d.path(key); err != nil {
		return "", err
	}
	return d.presign(signing.Ticket{Method: http.MethodGet, Key: key, Expires: expiry(ttl)}), nil
}

func (d *DiskObjects) PresignDownload(_ context.Context, key, filename, contentType string, ttl time.Duration) (string, error) {
	if _, err := d.path(key); err != nil {
		return "", err
	}
	return d.presign(signing.Ticket{
		Method:      http.MethodGet,
		Key:         key,
		Expires:     expiry(ttl),
		Filename:    filename,
		ContentType: contentType,
	}), nil
}

// Stat returns the stored size of key, or apperr.ErrNotUploaded.
func (d *DiskObjects) Stat(_ context.Context, key string) (int64, error) {
	info, err := d.stat(key)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Modified returns when key was last written, or apperr.ErrNotUploaded.
func (d *DiskObjects) Modified(_ context.Context, key string) (time.Time, error) {
	info, err := d.stat(key)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (d *DiskObjects) stat(key string) (os.FileInfo, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", key, apperr.ErrNotUploaded)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return info, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (d *DiskObjects) Remove(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ServeHTTP handles PUT and GET/HEAD of signed object URLs.
func (d *DiskObjects) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, d.prefix)
	p, err := d.path(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	q := r.URL.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		http.Error(w, "invalid expires", http.StatusForbidden)
		return
	}
	ticket := signing.Ticket{
		Method:      method,
		Key:         key,
		Expires:     expires,
		Filename:    q.Get("filename"),
		ContentType: q.Get("type"),
	}
	if !d.signer.Validate(ticket, q.Get("signature")) {
		http.Error(w, "signature mismatch or expired", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if r.Header.Get("Content-Type") != ticket.ContentType {
			http.Error(w, "content type does not match the signed type", http.StatusForbidden)
			return
		}
		d.put(w, r, p)
	case http.MethodGet, http.MethodHead:
		d.get(w, r, p, ticket)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *DiskObjects) put(w http.ResponseWriter, r *http.Request, p string) {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())

	body := http.MaxBytesReader(w, r.Body, d.maxSize)
	_, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(copyErr, &tooLarge) {
			http.Error(w, "object too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if closeErr != nil {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *DiskObjects) get(w http.ResponseWriter, r *http.Request, p string, t signing.Ticket) {
	f, err := os.Open(p)
	if err != nil {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	if t.ContentType != "" {
		w.Header().Set("Content-Type", t.ContentType)
	}
	if t.Filename != "" {
		w.Header().Set("Content-Disposition", media.AttachmentDisposition(t.Filename))
	}
	http.ServeContent(w, r, filepath.Base(p), info.ModTime(), f)
}
