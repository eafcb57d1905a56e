package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type folderRequest struct {
	Path string `json:"path" binding:"required"`
}

func (a *API) FolderCreate(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	folder, err := a.Deps.Images.CreateFolder(c.Request.Context(), req.Path)
	if err != nil {
		fail(c, err, "Failed to create folder")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"folder": folder})
}
