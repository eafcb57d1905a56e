package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type tagsRequest struct {
	Key  string   `json:"key" binding:"required"`
	Tags []string `json:"tags"`
}

// TagUpdate replaces every tag of an image. An empty list clears them.
func (a *API) TagUpdate(c *gin.Context) {
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if req.Tags == nil {
		badRequest(c, "Tags are missing")
		return
	}

	tags, err := a.Deps.Tags.SetTags(c.Request.Context(), req.Key, req.Tags)
	if err != nil {
		fail(c, err, "Failed to update tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":  req.Key,
		"tags": tags,
	})
}
