package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	MaxLimit = 500

	// TotalCountHeader carries the unpaged row count on paged list responses.
	TotalCountHeader = "X-Total-Count"
)

// Params holds optional paging parameters. A zero Limit means the caller did
// not ask for paging and the whole list is returned.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset= from the request. Unparseable or
// negative values are ignored.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 || limit == 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

func (p Params) Paged() bool {
	return p.Limit > 0
}

// SQLLimit is the LIMIT argument for a parameterised query: nil (LIMIT NULL,
// i.e. no limit) when the request is not paged.
func (p Params) SQLLimit() interface{} {
	if !p.Paged() {
		return nil
	}
	return p.Limit
}

// Window returns the bounds of the page within a slice of length n.
func (p Params) Window(n int) (start, end int) {
	if !p.Paged() {
		return 0, n
	}
	start = p.Offset
	if start > n {
		start = n
	}
	end = start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}

// SetTotal writes TotalCountHeader when the request is paged.
func (p Params) SetTotal(c echo.Context, total int) {
	if p.Paged() {
		c.Response().Header().Set(TotalCountHeader, strconv.Itoa(total))
	}
}
