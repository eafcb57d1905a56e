package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// queryLimit reads an optional positive integer query parameter capped at
// maxValue. It answers the request itself when the value is invalid.
func queryLimit(c *gin.Context, name string, maxValue int) (int, bool) {
	s := c.Query(name)
	if s == "" {
		return 0, true
	}

	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		badRequest(c, fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}

	if n > maxValue {
		badRequest(c, fmt.Sprintf("%s can't be bigger than %d", name, maxValue))
		return 0, false
	}

	return n, true
}

// seconds converts a client supplied lifetime. Zero means the default.
func seconds(n int) time.Duration {
	return time.Duration(max(n, 0)) * time.Second
}
