// Package model defines database models
package model

import (
	"bitwise74/photo-api/storage"
)

// IndexRecord is one row of the metadata index. It mirrors the storage
// attributes of an original image so folder listings can be sorted by
// name, date, size or tag count without scanning the bucket.
type IndexRecord struct {
	Key    string `gorm:"column:object_key;primaryKey;size:1024" json:"key"`
	Name   string `gorm:"not null;index:idx_folder_name,priority:2" json:"name"`
	Folder string `gorm:"size:1024;not null;index:idx_folder_name,priority:1;index:idx_folder_modified,priority:1;index:idx_folder_size,priority:1;index:idx_folder_tags,priority:1" json:"folder"`
	Size   int64  `gorm:"not null;index:idx_folder_size,priority:2" json:"size"`
	// Unix millisecond timestamps
	LastModified int64       `gorm:"not null;index:idx_folder_modified,priority:2" json:"lastModified"`
	Tags         StringSlice `gorm:"type:text" json:"tags"`
	TagCount     int         `gorm:"not null;index:idx_folder_tags,priority:2" json:"tagCount"`
	ContentType  string      `json:"contentType,omitempty"`
	ThumbnailKey string      `json:"thumbnailKey"`
	PreviewKey   string      `json:"previewKey"`
	UpdatedAt    int64       `gorm:"autoUpdateTime:milli" json:"updatedAt"`
}

func (IndexRecord) TableName() string {
	return "image_index"
}

// NewIndexRecord derives a record from an object's attributes.
func NewIndexRecord(info storage.ObjectInfo, tags []string) IndexRecord {
	if tags == nil {
		tags = []string{}
	}

	return IndexRecord{
		Key:          info.Key,
		Name:         storage.NameOf(info.Key),
		Folder:       storage.FolderOf(info.Key),
		Size:         info.Size,
		LastModified: info.LastModified.UnixMilli(),
		Tags:         tags,
		TagCount:     len(tags),
		ContentType:  info.ContentType,
		ThumbnailKey: storage.ThumbnailKey(info.Key),
		PreviewKey:   storage.PreviewKey(info.Key),
	}
}
