// Package model contains the struct definitions shared by the API server,
// the repositories and the upload client.
package model

import (
	"time"

	"github.com/dharsanguruparan/mediavault/internal/media"
)

// MediaRecord is a row in the media table. Optional columns are pointers so
// "unknown" survives the JSON round trip instead of collapsing to zero.
type MediaRecord struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	S3Key          string     `json:"s3Key"`
	Filename       string     `json:"filename"`
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	MediaType      media.Kind `json:"mediaType"`
	MimeType       string     `json:"mimeType"`
	FileSize       int64      `json:"fileSize"`
	Width          *int       `json:"width,omitempty"`
	Height         *int       `json:"height,omitempty"`
	Blur           *string    `json:"blur,omitempty"`
	Duration       *int       `json:"duration,omitempty"`
	ThumbnailS3Key *string    `json:"thumbnailS3Key,omitempty"`
	ThumbnailBlur  *string    `json:"thumbnailBlur,omitempty"`
	Metadata       *string    `json:"metadata,omitempty"`
	IsPublic       bool       `json:"isPublic"`
	IsFavorite     bool       `json:"isFavorite"`
	UploadedAt     time.Time  `json:"uploadedAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	TakenAt        *time.Time `json:"takenAt,omitempty"`
}

// StorageKeys lists every object key the record owns, asset first.
func (m *MediaRecord) StorageKeys() []string {
	keys := []string{m.S3Key}
	if m.ThumbnailS3Key != nil && *m.ThumbnailS3Key != "" {
		keys = append(keys, *m.ThumbnailS3Key)
	}
	return keys
}

// MediaView is a record decorated with freshly minted read URLs. The URLs
// are never persisted.
type MediaView struct {
	MediaRecord
	URL          string  `json:"url"`
	ThumbnailURL *string `json:"thumbnailUrl"`
}

// KindFilter selects records by kind in listings; KindAll disables it.
type KindFilter string

const (
	KindAll   KindFilter = "all"
	KindImage KindFilter = KindFilter(media.KindImage)
	KindVideo KindFilter = KindFilter(media.KindVideo)
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ListFilter holds the listing parameters.
type ListFilter struct {
	MediaType     KindFilter `json:"mediaType"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
	ShowFavorites bool       `json:"showFavorites"`
}

// UploadProgress is a byte-level transfer snapshot.
type UploadProgress struct {
	Loaded     int64 `json:"loaded"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

// NewUploadProgress computes the rounded percentage; a zero total yields 0.
func NewUploadProgress(loaded, total int64) UploadProgress {
	p := UploadProgress{Loaded: loaded, Total: total}
	if total > 0 {
		p.Percentage = int((loaded*100 + total/2) / total)
	}
	return p
}
