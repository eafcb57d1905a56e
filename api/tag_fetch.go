package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) TagFetch(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "Key is missing")
		return
	}

	tags, err := a.Deps.Tags.GetTags(c.Request.Context(), key)
	if err != nil {
		fail(c, err, "Failed to read tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":  key,
		"tags": tags,
	})
}
