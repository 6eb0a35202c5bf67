package model

import (
	"strings"

	"github.com/google/uuid"
)

const (
	mediaIDPrefix = "media_"
	mediaIDLength = 16
	// uuidVersionDigit is the fixed version nibble of a v4 uuid in its hex form.
	uuidVersionDigit = 12
)

// NewMediaID returns a fresh record id such as media_3f9c2a7b1d04e8c5,
// carrying 64 random bits.
func NewMediaID() string {
	h := strings.ReplaceAll(uuid.NewString(), "-", "")
	h = h[:uuidVersionDigit] + h[uuidVersionDigit+1:]
	return mediaIDPrefix + h[:mediaIDLength]
}
