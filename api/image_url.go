package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (a *API) ImageURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "Key is missing")
		return
	}

	expiresIn := 0
	if s := c.Query("expiresIn"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			badRequest(c, "expiresIn must be a number of seconds")
			return
		}
		expiresIn = n
	}

	url, expiresAt, err := a.Deps.Images.DownloadURL(c.Request.Context(), key, seconds(expiresIn))
	if err != nil {
		fail(c, err, "Failed to presign download")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       url,
		"expiresAt": expiresAt.UnixMilli(),
	})
}
