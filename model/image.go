package model

// Image is the API view of a stored original with ready-to-use URLs.
type Image struct {
	Key          string   `json:"key"`
	Name         string   `json:"name"`
	Folder       string   `json:"folder"`
	Size         int64    `json:"size"`
	LastModified int64    `json:"lastModified"`
	Tags         []string `json:"tags"`
	URL          string   `json:"url,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	PreviewURL   string   `json:"previewUrl,omitempty"`
}
