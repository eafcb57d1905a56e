package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) ShareDelete(c *gin.Context) {
	userID := c.MustGet("userID").(string)

	if err := a.Deps.Shares.Delete(c.Request.Context(), c.Param("token"), userID); err != nil {
		fail(c, err, "Failed to delete share")
		return
	}

	c.Status(http.StatusOK)
}
