// Package idgen generates opaque, URL-safe identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// PassPrefix marks gate pass identifiers.
	PassPrefix = "gp-"
	// Alphabet avoids characters that need escaping in URLs or QR payloads.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// PassLength gives roughly 95 bits of entropy.
	PassLength = 16
)

// PassID returns a new gate pass identifier.
func PassID() (string, error) {
	return WithPrefix(PassPrefix, PassLength)
}

// WithPrefix returns prefix followed by length random characters.
func WithPrefix(prefix string, length int) (string, error) {
	id, err := nanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
