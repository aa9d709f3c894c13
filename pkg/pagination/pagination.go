// Package pagination parses the page/limit query parameters shared by every
// listing endpoint (requests, approvals, users, departments, audit logs).
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params carries the clamped paging values plus the derived row offset.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page and limit from the request query. Missing or malformed
// values fall back to the defaults; limit is clamped to [MinLimit, MaxLimit]
// so a single page can never pull an unbounded result set.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))

	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
