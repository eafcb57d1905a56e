// Package validators contains the checks applied to client input before it
// reaches the object store or the index
package validators

import (
	"strings"
	"unicode"

	"bitwise74/photo-api/apperr"
)

// MaxKeyLength is the longest object key S3 accepts.
const MaxKeyLength = 1024

// ValidateKey rejects object keys that are empty, too long, absolute,
// contain path traversal or empty segments, or carry control characters
// other than tab, CR and LF.
func ValidateKey(key string) error {
	if key == "" {
		return apperr.Validation("key is required")
	}

	if len(key) > MaxKeyLength {
		return apperr.Validation("key must be at most %d bytes", MaxKeyLength)
	}

	if strings.HasPrefix(key, "/") {
		return apperr.Validation("key must not start with a slash")
	}

	if strings.Contains(key, "..") {
		return apperr.Validation("key must not contain '..'")
	}

	if strings.Contains(key, "//") {
		return apperr.Validation("key must not contain empty path segments")
	}

	if hasControlChars(key) {
		return apperr.Validation("key contains control characters")
	}

	return nil
}

// ValidatePrefix checks a folder prefix and returns it in canonical form:
// no leading slash and exactly one trailing slash. The bucket root is the
// empty string.
func ValidatePrefix(prefix string) (string, error) {
	if strings.Contains(prefix, "..") {
		return "", apperr.Validation("prefix must not contain '..'")
	}

	if hasControlChars(prefix) {
		return "", apperr.Validation("prefix contains control characters")
	}

	p := strings.Trim(prefix, "/")
	if p == "" {
		return "", nil
	}

	if strings.Contains(p, "//") {
		return "", apperr.Validation("prefix must not contain empty path segments")
	}

	p += "/"
	if len(p) > MaxKeyLength {
		return "", apperr.Validation("prefix must be at most %d bytes", MaxKeyLength)
	}

	return p, nil
}

func hasControlChars(s string) bool {
	for _, r := range s {
		switch r {
		case '\t', '\r', '\n':
			continue
		}

		if unicode.IsControl(r) {
			return true
		}
	}

	return false
}
