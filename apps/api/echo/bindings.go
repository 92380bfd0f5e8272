package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/roster"
)

// bindStudentFilter reads `search`, `page` & `limit` from the query string; bad numbers are ignored.
func bindStudentFilter(ctx echo.Context) roster.StudentFilter {
	var filter roster.StudentFilter
	filter.Search = ctx.QueryParam("search")
	if page, err := strconv.Atoi(ctx.QueryParam("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil {
		filter.Limit = limit
	}
	filter.Clean()
	return filter
}

// paramID parses the positive integer path parameter `name`.
func paramID(ctx echo.Context, name, label string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "Valid " + label + " ID is required"})
	}
	return id, nil
}

// queryID parses the positive integer query parameter `name`.
func queryID(ctx echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.QueryParam(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalCount  int `json:"total_count"`
	Limit       int `json:"limit"`
}

func newPagination(p core.Pagination, total int) Pagination {
	return Pagination{
		CurrentPage: p.Page,
		TotalPages:  p.TotalPages(total),
		TotalCount:  total,
		Limit:       p.Limit,
	}
}
