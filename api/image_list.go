package api

import (
	"net/http"

	"bitwise74/photo-api/service"

	"github.com/gin-gonic/gin"
)

func (a *API) ImageList(c *gin.Context) {
	limit, ok := queryLimit(c, "limit", service.MaxPageSize)
	if !ok {
		return
	}

	listing, err := a.Deps.Images.List(c.Request.Context(), c.Query("prefix"), c.Query("token"), limit)
	if err != nil {
		fail(c, err, "Failed to list images")
		return
	}

	c.JSON(http.StatusOK, listing)
}
