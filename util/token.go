// Package util contains any functions used across the application that don't match
// any other package
package util

import (
	"encoding/base64"
	"io"
)

// GenerateToken reads n bytes from r and returns them base64url encoded
// without padding. Pass crypto/rand.Reader outside of tests.
func GenerateToken(r io.Reader, n int) (string, error) {
	b := make([]byte, n)

	_, err := io.ReadFull(r, b)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
