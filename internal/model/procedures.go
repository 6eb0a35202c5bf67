package model

import (
	"time"

	"github.com/dharsanguruparan/mediavault/internal/media"
)

// PresignRequest asks for a write URL for a new asset.
type PresignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize,omitempty"`
}

// CustomKeyRequest asks for a write URL for a caller chosen key.
type CustomKeyRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

// PresignedUpload is a write URL bound to a storage key.
type PresignedUpload struct {
	URL       string     `json:"url"`
	Key       string     `json:"key"`
	MediaType media.Kind `json:"mediaType,omitempty"`
}

// SaveMediaInput carries the fields a client may set when persisting an
// upload. The owner always comes from the authenticated caller.
type SaveMediaInput struct {
	S3Key          string     `json:"s3Key"`
	Filename       string     `json:"filename"`
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	MediaType      media.Kind `json:"mediaType,omitempty"`
	MimeType       string     `json:"mimeType"`
	FileSize       int64      `json:"fileSize"`
	Width          *int       `json:"width,omitempty"`
	Height         *int       `json:"height,omitempty"`
	Blur           *string    `json:"blur,omitempty"`
	Duration       *int       `json:"duration,omitempty"`
	ThumbnailS3Key *string    `json:"thumbnailS3Key,omitempty"`
	ThumbnailBlur  *string    `json:"thumbnailBlur,omitempty"`
	Metadata       *string    `json:"metadata,omitempty"`
	TakenAt        *time.Time `json:"takenAt,omitempty"`
}

// MediaURL is a freshly minted read URL.
type MediaURL struct {
	URL string `json:"url"`
}

// DownloadLink is a short lived read URL that forces a download.
type DownloadLink struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}
