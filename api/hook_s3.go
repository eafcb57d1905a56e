package api

import (
	"net/http"

	"bitwise74/photo-api/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HookS3 receives bucket notifications. It answers 200 for anything it
// could authenticate, so senders never retry a payload that would fail
// the same way again.
func (a *API) HookS3(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	body, err := c.GetRawData()
	if err != nil {
		zap.L().Warn("Failed to read storage event", zap.Error(err), zap.String("requestID", requestID))
		c.JSON(http.StatusOK, service.BatchReport{})
		return
	}

	records, err := service.ParseS3Event(body)
	if err != nil {
		zap.L().Warn("Dropping malformed storage event", zap.Error(err), zap.String("requestID", requestID))
		c.JSON(http.StatusOK, service.BatchReport{})
		return
	}

	report := a.Deps.Events.HandleBatch(c.Request.Context(), records)
	c.JSON(http.StatusOK, report)
}
