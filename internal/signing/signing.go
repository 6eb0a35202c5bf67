// Package signing implements the HMAC tickets behind the local object store's
// presigned URLs. A ticket binds the HTTP method, the object key, the expiry
// and any response overrides, so a write URL cannot be replayed as a read
// URL or pointed at another key.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Ticket is the signed part of a URL.
type Ticket struct {
	Method      string
	Key         string
	Expires     int64
	Filename    string
	ContentType string
}

func (t Ticket) payload() string {
	return strings.Join([]string{
		t.Method,
		t.Key,
		strconv.FormatInt(t.Expires, 10),
		t.Filename,
		t.ContentType,
	}, "\n")
}

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for t.
func (s *Signer) Sign(t Ticket) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(t.payload()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate reports whether signature matches t and t has not expired.
func (s *Signer) Validate(t Ticket, signature string) bool {
	if s.now().Unix() > t.Expires {
		return false
	}
	expected := s.Sign(t)
	return hmac.Equal([]byte(expected), []byte(signature))
}
