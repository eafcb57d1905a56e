package api

import (
	"net/http"
	"strings"

	"bitwise74/photo-api/index"

	"github.com/gin-gonic/gin"
)

// ImageQuery serves index backed listings. Cursors are only valid with the
// sortBy and order they were issued for.
func (a *API) ImageQuery(c *gin.Context) {
	sortBy, err := index.ParseSortBy(strings.ToLower(c.Query("sortBy")))
	if err != nil {
		fail(c, err, "Invalid sort key")
		return
	}

	order, err := index.ParseOrder(strings.ToLower(c.Query("order")))
	if err != nil {
		fail(c, err, "Invalid order")
		return
	}

	limit, ok := queryLimit(c, "limit", index.MaxLimit)
	if !ok {
		return
	}

	listing, err := a.Deps.Images.Query(c.Request.Context(), c.Query("folder"), index.QueryOptions{
		SortBy: sortBy,
		Order:  order,
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		fail(c, err, "Failed to query index")
		return
	}

	c.JSON(http.StatusOK, listing)
}
