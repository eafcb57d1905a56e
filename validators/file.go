package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrNoFile              = errors.New("no file provided")
)

// SupportedImageExts lists the extensions derivatives can be generated for.
var SupportedImageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}

// IsSupportedImage reports whether the key's extension is one the image
// pipeline can decode. The check is case-insensitive.
func IsSupportedImage(key string) bool {
	return slices.Contains(SupportedImageExts, strings.ToLower(path.Ext(key)))
}

// ImageFileValidator checks an uploaded multipart file. It returns the status
// code to answer with on failure, the opened file rewound to the start, and
// the content type sniffed from its bytes.
func ImageFileValidator(fh *multipart.FileHeader, maxFileSize int64) (int, multipart.File, string, error) {
	if fh == nil {
		return http.StatusBadRequest, nil, "", ErrNoFile
	}

	// Header check first, cheap for legit clients
	if !IsSupportedImage(fh.Filename) {
		return http.StatusBadRequest, nil, "", ErrFileTypeUnsupported
	}

	if fh.Size > maxFileSize {
		return http.StatusRequestEntityTooLarge, nil, "", ErrFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, "", err
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, "", err
	}

	if !strings.HasPrefix(mime.String(), "image/") {
		f.Close()
		return http.StatusBadRequest, nil, "", ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, "", err
	}

	return 0, f, mime.String(), nil
}
