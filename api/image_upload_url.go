package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type uploadURLRequest struct {
	Key         string `json:"key" binding:"required"`
	ContentType string `json:"contentType"`
	// Seconds, zero for the default
	ExpiresIn int `json:"expiresIn"`
}

func (a *API) ImageUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	url, expiresAt, err := a.Deps.Images.UploadURL(c.Request.Context(), req.Key, req.ContentType, seconds(req.ExpiresIn))
	if err != nil {
		fail(c, err, "Failed to presign upload")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       url,
		"key":       req.Key,
		"expiresAt": expiresAt.UnixMilli(),
	})
}
