package api

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"bitwise74/photo-api/service"
	"bitwise74/photo-api/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImageUpload stores a multipart "file". The key is taken from "key" or
// built from "folder" and the file name. Tags come as repeated "tags"
// fields or a comma separated list.
func (a *API) ImageUpload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	if !strings.HasPrefix(c.Request.Header.Get("Content-Type"), "multipart/form-data") {
		badRequest(c, "Invalid request")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return
		}

		badRequest(c, "Invalid multipart form")
		return
	}

	files := form.File["file"]
	if len(files) == 0 {
		badRequest(c, "No file provided")
		return
	}

	fh := files[0]

	code, f, contentType, err := validators.ImageFileValidator(fh, a.maxUploadSize)
	if err != nil {
		if code == http.StatusInternalServerError {
			zap.L().Error("Failed to validate file", zap.Error(err), zap.String("requestID", requestID))

			// That's to set the error into a general one for the users
			err = errors.New("internal server error")
		}

		c.AbortWithStatusJSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}
	defer f.Close()

	key := c.PostForm("key")
	if key == "" {
		folder := strings.Trim(c.PostForm("folder"), "/")
		key = path.Base(fh.Filename)
		if folder != "" {
			key = folder + "/" + key
		}
	}

	var tags []string
	for _, v := range form.Value["tags"] {
		tags = append(tags, strings.Split(v, ",")...)
	}

	rec, err := a.Deps.Images.Upload(c.Request.Context(), service.UploadRequest{
		Key:         key,
		Body:        f,
		Size:        fh.Size,
		ContentType: contentType,
		Tags:        tags,
	})
	if err != nil {
		fail(c, err, "Failed to upload image")
		return
	}

	c.JSON(http.StatusCreated, rec)
}
