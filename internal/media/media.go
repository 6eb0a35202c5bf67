// Package media classifies MIME types into the media kinds the vault accepts
// and owns the size ceilings and storage key layout for each kind. Everything
// here is pure so both the upload client and the API server can share it.
package media

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Kind is the semantic media classification derived from a MIME type.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

const (
	MaxImageSize int64 = 50 << 20  // 50 MiB
	MaxVideoSize int64 = 500 << 20 // 500 MiB
)

// ThumbnailContentType is the MIME type of generated video thumbnails.
const ThumbnailContentType = "image/jpeg"

var imageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/heic",
	"image/heif",
}

var videoTypes = []string{
	"video/mp4",
	"video/mov",
	"video/quicktime",
	"video/avi",
	"video/x-msvideo",
	"video/mkv",
	"video/x-matroska",
	"video/webm",
}

// ImageTypes returns a copy of the accepted image MIME types.
func ImageTypes() []string { return append([]string(nil), imageTypes...) }

// VideoTypes returns a copy of the accepted video MIME types.
func VideoTypes() []string { return append([]string(nil), videoTypes...) }

// AcceptedTypes returns every accepted MIME type, images first.
func AcceptedTypes() []string {
	out := make([]string, 0, len(imageTypes)+len(videoTypes))
	out = append(out, imageTypes...)
	return append(out, videoTypes...)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// IsImage reports whether mimeType is in the accepted image set.
func IsImage(mimeType string) bool { return contains(imageTypes, mimeType) }

// IsVideo reports whether mimeType is in the accepted video set.
func IsVideo(mimeType string) bool { return contains(videoTypes, mimeType) }

// IsAccepted reports whether mimeType is accepted at all.
func IsAccepted(mimeType string) bool { return IsImage(mimeType) || IsVideo(mimeType) }

// Classify maps an accepted MIME type to its Kind. The boolean is false for
// anything outside the accepted sets.
func Classify(mimeType string) (Kind, bool) {
	switch {
	case IsImage(mimeType):
		return KindImage, true
	case IsVideo(mimeType):
		return KindVideo, true
	}
	return "", false
}

// ParseKind accepts the wire form of a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindImage, KindVideo:
		return Kind(s), true
	}
	return "", false
}

// MaxFileSize returns the byte ceiling for a kind.
func MaxFileSize(kind Kind) int64 {
	if kind == KindImage {
		return MaxImageSize
	}
	return MaxVideoSize
}

// Label is the human readable plural used in messages.
func (k Kind) Label() string {
	if k == KindImage {
		return "images"
	}
	return "videos"
}

// Reason distinguishes validation failures.
type Reason string

const (
	ReasonUnsupportedType Reason = "unsupported_type"
	ReasonTooLarge        Reason = "too_large"
	ReasonEmpty           Reason = "empty"
)

// ValidationError is returned by ValidateFile.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateFile checks the MIME type membership and the size ceiling of the
// file's kind.
func ValidateFile(mimeType string, size int64) error {
	kind, ok := Classify(mimeType)
	if !ok {
		return &ValidationError{
			Reason:  ReasonUnsupportedType,
			Message: fmt.Sprintf("unsupported file type: %q", mimeType),
		}
	}
	if size <= 0 {
		return &ValidationError{Reason: ReasonEmpty, Message: "file is empty"}
	}
	if max := MaxFileSize(kind); size > max {
		return &ValidationError{
			Reason:  ReasonTooLarge,
			Message: fmt.Sprintf("file too large: maximum %dMB for %s", max>>20, kind.Label()),
		}
	}
	return nil
}

// Folder returns the storage prefix segment for a kind.
func Folder(kind Kind) string {
	return kind.Label()
}

const keyRoot = "uploads"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName reduces a client supplied name to a safe key segment.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 128 {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:128-len(ext)] + ext
	}
	return name
}

// ObjectKey builds a fresh, collision resistant storage key namespaced by
// kind and owner: uploads/{images|videos}/{owner}/{random}-{name}.
func ObjectKey(kind Kind, ownerID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s", keyRoot, Folder(kind), ownerID, uuid.NewString(), SanitizeFileName(fileName))
}

// ThumbnailKey derives the thumbnail key for a video key: same basename with
// a .jpg extension. A key already ending in .jpg gets .thumb.jpg so the
// thumbnail never overwrites the asset.
func ThumbnailKey(key string) string {
	ext := path.Ext(key)
	base := strings.TrimSuffix(key, ext)
	if strings.EqualFold(ext, ".jpg") {
		return base + ".thumb.jpg"
	}
	return base + ".jpg"
}

// OwnsKey reports whether key lives inside ownerID's namespace for any kind.
func OwnsKey(key, ownerID string) bool {
	if ownerID == "" || strings.Contains(key, "..") {
		return false
	}
	for _, kind := range []Kind{KindImage, KindVideo} {
		prefix := fmt.Sprintf("%s/%s/%s/", keyRoot, Folder(kind), ownerID)
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return true
		}
	}
	return false
}

// AttachmentDisposition builds a Content-Disposition value that forces a
// download and survives non-ASCII file names.
func AttachmentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	if fallback == "" {
		fallback = "download"
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, url.PathEscape(filename))
}
