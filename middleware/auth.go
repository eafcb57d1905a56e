package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewAuthMiddleware verifies the bearer token and stores the caller's
// subject as userID and the full identity as identity.
func NewAuthMiddleware(v security.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization header is missing",
				"requestID": requestID,
			})
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token malformed",
				"requestID": requestID,
			})
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
				"error":     apperr.PublicMessage(err),
				"requestID": requestID,
			})

			if apperr.Is(err, apperr.KindInternal) {
				zap.L().Error("Failed to verify token", zap.Error(err), zap.String("requestID", requestID))
			} else {
				zap.L().Debug("Rejected token", zap.Error(err), zap.String("requestID", requestID))
			}
			return
		}

		c.Set("userID", id.Subject)
		c.Set("identity", id)
		c.Next()
	}
}

// NewSecretMiddleware guards machine endpoints such as the storage webhook
// with a static bearer secret. An empty secret disables the endpoint.
func NewSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		if secret == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":     "Not found",
				"requestID": requestID,
			})
			return
		}

		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})
			return
		}

		c.Next()
	}
}
