package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) ImageDelete(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "Key is missing")
		return
	}

	if err := a.Deps.Images.Delete(c.Request.Context(), key); err != nil {
		fail(c, err, "Failed to delete image")
		return
	}

	c.Status(http.StatusOK)
}
