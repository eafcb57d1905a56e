package api

import (
	"net/http"

	"bitwise74/photo-api/service"

	"github.com/gin-gonic/gin"
)

type shareRequest struct {
	Key string `json:"key" binding:"required"`
	// Clamped to [1, share.max_days]
	ExpiresInDays int `json:"expiresInDays"`
}

func (a *API) ShareCreate(c *gin.Context) {
	userID := c.MustGet("userID").(string)

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if req.ExpiresInDays == 0 {
		req.ExpiresInDays = service.DefaultShareDays
	}

	share, err := a.Deps.Shares.Create(c.Request.Context(), req.Key, req.ExpiresInDays, userID)
	if err != nil {
		fail(c, err, "Failed to create share")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":     share.Token,
		"imageKey":  share.ImageKey,
		"expiresAt": share.ExpiresAt,
		"createdAt": share.CreatedAt,
		"path":      "/api/share/" + share.Token,
	})
}
