package api

import (
	"net/http"

	"bitwise74/photo-api/apperr"

	"github.com/gin-gonic/gin"
)

// ShareResolve is public. Unknown and expired tokens get the same 404.
func (a *API) ShareResolve(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	share, err := a.Deps.Shares.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, err, "Failed to resolve share")
		return
	}

	if share == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "Share not found",
			"requestID": requestID,
		})
		return
	}

	img, err := a.Deps.Images.View(c.Request.Context(), share.ImageKey)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":     "Shared image no longer exists",
				"requestID": requestID,
			})
			return
		}

		fail(c, err, "Failed to load shared image")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image":     img,
		"expiresAt": share.ExpiresAt,
	})
}
