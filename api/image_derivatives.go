package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

// ImageDerivatives generates whatever derivatives of an image are missing.
// Existing ones are reported as skipped.
func (a *API) ImageDerivatives(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	results, err := a.Deps.Images.GenerateDerivatives(c.Request.Context(), req.Key)
	if err != nil {
		fail(c, err, "Failed to generate derivatives")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":     req.Key,
		"results": results,
	})
}
