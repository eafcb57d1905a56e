// Package service contains stuff related to the background processing
// of the application
package service

import (
	"bytes"
	"image"
	"io"
	"math"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	ThumbnailSize    = 200
	PreviewMaxWidth  = 1920
	PreviewMaxHeight = 1080
	JPEGQuality      = 85
)

// MakeThumbnail center-crops img to a ThumbnailSize square.
func MakeThumbnail(img image.Image) image.Image {
	return imaging.Fill(img, ThumbnailSize, ThumbnailSize, imaging.Center, imaging.Lanczos)
}

// PreviewDimensions scales w x h down to fit inside the preview bounds while
// keeping the aspect ratio. Images that already fit are never upscaled.
func PreviewDimensions(w, h int) (int, int) {
	if w <= PreviewMaxWidth && h <= PreviewMaxHeight {
		return w, h
	}

	scale := math.Min(float64(PreviewMaxWidth)/float64(w), float64(PreviewMaxHeight)/float64(h))

	nw := min(PreviewMaxWidth, max(1, int(math.Round(float64(w)*scale))))
	nh := min(PreviewMaxHeight, max(1, int(math.Round(float64(h)*scale))))

	return nw, nh
}

func MakePreview(img image.Image) image.Image {
	b := img.Bounds()

	w, h := PreviewDimensions(b.Dx(), b.Dy())
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// decodeImage decodes any format registered with the image package,
// applying EXIF orientation for JPEGs.
func decodeImage(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

// encodeDerivative writes img in the format matching the original's
// extension: PNG and GIF keep their format, everything else becomes JPEG.
func encodeDerivative(img image.Image, key string) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error
	var contentType string

	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		contentType = "image/png"
		err = imaging.Encode(&buf, img, imaging.PNG)
	case ".gif":
		contentType = "image/gif"
		err = imaging.Encode(&buf, img, imaging.GIF)
	default:
		contentType = "image/jpeg"
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	}

	if err != nil {
		return nil, "", err
	}

	return buf.Bytes(), contentType, nil
}
