package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// MaxLimit caps every list endpoint.
const MaxLimit = 500

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// Parse reads limit and offset from the query string. Missing or invalid
// values fall back to defaultLimit and 0; limits above max are capped.
func Parse(c echo.Context, defaultLimit, max int) Params {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if max > 0 && limit > max {
		limit = max
	}

	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}
