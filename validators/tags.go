package validators

import (
	"slices"
	"strings"

	"bitwise74/photo-api/apperr"
)

const (
	MaxTagLength = 64
	MaxTags      = 50
)

// NormalizeTags trims and lowercases every tag, drops empties and
// duplicates and returns the result sorted. It fails when a tag is longer
// than MaxTagLength or more than MaxTags remain.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))

	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}

		if len(t) > MaxTagLength {
			return nil, apperr.Validation("tag %q exceeds %d characters", t, MaxTagLength)
		}

		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		out = append(out, t)
	}

	if len(out) > MaxTags {
		return nil, apperr.Validation("at most %d tags are allowed", MaxTags)
	}

	slices.Sort(out)

	return out, nil
}
