package api

import (
	"net/http"

	"bitwise74/photo-api/apperr"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// fail answers with the status and message matching err's kind. Server side
// failures are logged under msg. The raw error is only exposed as details
// in development.
func fail(c *gin.Context, err error, msg string) {
	requestID := c.MustGet("requestID").(string)
	status := apperr.HTTPStatus(err)

	body := gin.H{
		"error":     apperr.PublicMessage(err),
		"requestID": requestID,
	}

	if viper.GetString("app.env") == "development" {
		body["details"] = err.Error()
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error(msg, zap.Error(err), zap.String("requestID", requestID))
	}

	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":     msg,
		"requestID": c.MustGet("requestID").(string),
	})
}
