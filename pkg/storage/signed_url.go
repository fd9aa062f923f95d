package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed or tampered download tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// SignedURLSigner creates and validates HMAC-signed download tokens.
type SignedURLSigner struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewSignedURLSigner constructs a signer. defaultTTL applies when Sign is called with a zero TTL.
func NewSignedURLSigner(secret string, defaultTTL time.Duration) *SignedURLSigner {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &SignedURLSigner{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Sign returns a token of the form "<unix expiry>.<base64 ref>.<hex hmac>".
func (s *SignedURLSigner) Sign(ref string, ttl time.Duration) (string, time.Time, error) {
	if ref == "" {
		return "", time.Time{}, fmt.Errorf("ref required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	return strings.Join([]string{ts, encodedRef, s.mac(ts, encodedRef)}, "."), expiresAt, nil
}

// Verify validates the signature and expiry and returns the embedded ref.
func (s *SignedURLSigner) Verify(token string) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, ErrInvalidToken
	}
	ts, encodedRef, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(s.mac(ts, encodedRef)), []byte(signature)) {
		return "", time.Time{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	rawRef, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", expiresAt, ErrTokenExpired
	}
	return string(rawRef), expiresAt, nil
}

func (s *SignedURLSigner) mac(ts, encodedRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ts + "|" + encodedRef))
	return hex.EncodeToString(mac.Sum(nil))
}
