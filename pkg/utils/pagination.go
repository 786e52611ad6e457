package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// GetPaginationParams reads ?limit with either ?offset or a 1-based ?page.
// An explicit offset wins over page.
func GetPaginationParams(c echo.Context) PaginationParams {
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	if raw := c.QueryParam("offset"); raw != "" {
		offset, _ := strconv.Atoi(raw)
		if offset < 0 {
			offset = 0
		}
		return PaginationParams{
			Page:     offset/pageSize + 1,
			PageSize: pageSize,
			Offset:   offset,
		}
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}
}
