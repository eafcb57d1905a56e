package api

import (
	"net/http"

	"bitwise74/photo-api/service"

	"github.com/gin-gonic/gin"
)

func (a *API) TagCounts(c *gin.Context) {
	src, err := service.ParseTagSource(c.Query("source"))
	if err != nil {
		fail(c, err, "Invalid tag source")
		return
	}

	counts, err := a.Deps.Tags.AllTagCounts(c.Request.Context(), src)
	if err != nil {
		fail(c, err, "Failed to count tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source": src,
		"tags":   counts,
	})
}
