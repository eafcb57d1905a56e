package storage

import (
	"encoding/json"
	"strings"
)

const (
	ThumbnailPrefix = "thumbnails/"
	PreviewPrefix   = "previews/"

	// RootFolder is how the index names the bucket root
	RootFolder = "/"

	// MetaTags is the user metadata key holding the JSON encoded tag list
	MetaTags = "tags"

	// ImmutableCacheControl is set on derivatives, they never change once written
	ImmutableCacheControl = "public, max-age=31536000, immutable"
)

func ThumbnailKey(key string) string {
	return ThumbnailPrefix + key
}

func PreviewKey(key string) string {
	return PreviewPrefix + key
}

// IsDerivativeKey reports whether key lives under one of the derivative
// prefixes. Originals stored there are never processed.
func IsDerivativeKey(key string) bool {
	return strings.HasPrefix(key, ThumbnailPrefix) || strings.HasPrefix(key, PreviewPrefix)
}

// IsFolderMarker reports whether key is a zero-byte "directory" placeholder.
func IsFolderMarker(key string) bool {
	return strings.HasSuffix(key, "/")
}

// FolderOf returns the folder part of key including its trailing slash, or
// RootFolder for keys at the top level.
func FolderOf(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return RootFolder
	}

	return key[:i+1]
}

// NameOf returns the final path segment of key.
func NameOf(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

// ParseTags reads the tag list out of object metadata. Missing or unreadable
// values yield an empty list.
func ParseTags(meta map[string]string) []string {
	tags := []string{}

	raw := ""
	for k, v := range meta {
		if strings.EqualFold(k, MetaTags) {
			raw = v
			break
		}
	}

	if raw == "" {
		return tags
	}

	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}

	return tags
}

func EncodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}

	b, _ := json.Marshal(tags)
	return string(b)
}

// LowerKeys returns a copy of m with lowercased keys. Backends disagree on
// the casing of user metadata, the rest of the service expects lowercase.
func LowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}

	return out
}
