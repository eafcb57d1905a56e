package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) FolderList(c *gin.Context) {
	folders, err := a.Deps.Images.Folders(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		fail(c, err, "Failed to list folders")
		return
	}

	c.JSON(http.StatusOK, gin.H{"folders": folders})
}
