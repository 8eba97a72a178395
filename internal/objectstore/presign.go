package objectstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrEmptySigningSecret indicates the signer was constructed without a
// secret.
var ErrEmptySigningSecret = errors.New("signing secret cannot be empty")

// Signer produces and verifies presigned download URLs. A presigned URL is an
// HMAC-SHA256-signed, expiring link to this service's own download route; the
// signature covers bucket, key and expiry, so a link grants access to exactly
// one object for a bounded time.
type Signer struct {
	baseURL string
	secret  []byte
}

// NewSigner creates a Signer. baseURL is the externally reachable prefix of
// this service (e.g. "http://localhost:8000").
func NewSigner(baseURL string, secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySigningSecret
	}

	return &Signer{
		baseURL: baseURL,
		secret:  []byte(secret),
	}, nil
}

// PresignedGetURL returns a signed download link valid for ttl.
func (s *Signer) PresignedGetURL(bucket, key string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	signature := s.sign(bucket, key, expires)

	return fmt.Sprintf(
		"%s/download/%s/%s?expires=%d&signature=%s",
		s.baseURL, url.PathEscape(bucket), key, expires, signature,
	), nil
}

// Verify reports whether the signature matches the bucket, key and expiry,
// and the link has not expired.
func (s *Signer) Verify(bucket, key string, expires int64, signature string) bool {
	if time.Now().Unix() > expires {
		return false
	}

	expected := s.sign(bucket, key, expires)

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Signer) sign(bucket, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s/%s:%d", bucket, key, expires)

	return hex.EncodeToString(mac.Sum(nil))
}
