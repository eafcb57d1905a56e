package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) ShareList(c *gin.Context) {
	userID := c.MustGet("userID").(string)

	shares, err := a.Deps.Shares.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		fail(c, err, "Failed to list shares")
		return
	}

	c.JSON(http.StatusOK, gin.H{"shares": shares})
}
