package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when a stored document no longer exists.
var ErrObjectNotFound = errors.New("object not found")

// LocalStore persists documents on disk under a base directory and hands out
// signed links served by the API's download endpoint.
type LocalStore struct {
	baseDir       string
	signer        *SignedURLSigner
	publicBaseURL string
}

// NewLocalStore ensures the base directory exists and returns a handle.
// Signed links take the form {publicBaseURL}/documents/{token}.
func NewLocalStore(baseDir string, signer *SignedURLSigner, publicBaseURL string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./documents"
	}
	if signer == nil {
		return nil, fmt.Errorf("signer required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir, signer: signer, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Put writes data under key and returns the key as the document ref.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare document directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit document: %w", err)
	}
	return key, nil
}

// SignedURL returns an expiring download link for ref.
func (s *LocalStore) SignedURL(_ context.Context, ref string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(ref); err != nil {
		return "", err
	}
	token, _, err := s.signer.Sign(ref, ttl)
	if err != nil {
		return "", fmt.Errorf("sign document link: %w", err)
	}
	return s.publicBaseURL + "/documents/" + url.PathEscape(token), nil
}

// OpenToken validates a download token and opens the referenced document.
func (s *LocalStore) OpenToken(token string) (io.ReadCloser, string, error) {
	ref, _, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", err
	}
	rc, err := s.Open(ref)
	if err != nil {
		return nil, "", err
	}
	return rc, filepath.Base(ref), nil
}

// Open returns a read-only handle for the stored document.
func (s *LocalStore) Open(ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open document: %w", err)
	}
	return file, nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}
