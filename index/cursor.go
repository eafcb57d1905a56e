package index

import (
	"encoding/base64"
	"encoding/json"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/model"
)

// cursor is the last row of a page: its sort value and its key.
type cursor struct {
	Str string `json:"s,omitempty"`
	Num int64  `json:"n,omitempty"`
	Key string `json:"k"`
}

func (c cursor) value(sortBy SortBy) any {
	if sortBy == SortName {
		return c.Str
	}

	return c.Num
}

func encodeCursor(sortBy SortBy, rec model.IndexRecord) string {
	c := cursor{Key: rec.Key}

	switch sortBy {
	case SortName:
		c.Str = rec.Name
	case SortDate:
		c.Num = rec.LastModified
	case SortSize:
		c.Num = rec.Size
	case SortTags:
		c.Num = int64(rec.TagCount)
	}

	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (*cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Validation("invalid cursor")
	}

	var c cursor
	if err := json.Unmarshal(b, &c); err != nil || c.Key == "" {
		return nil, apperr.Validation("invalid cursor")
	}

	return &c, nil
}
