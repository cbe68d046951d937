package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the limit/offset window requested by a client.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=, applying the default and cap.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps one page of results.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset never goes below zero.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// NextURL returns the path of the following page, or "" on the last page.
func (p Params) NextURL(basePath string, total int) string {
	if !p.HasNext(total) {
		return ""
	}
	return fmt.Sprintf("%s?limit=%d&offset=%d", basePath, p.Limit, p.NextOffset())
}

// PrevURL returns the path of the preceding page, or "" on the first page.
func (p Params) PrevURL(basePath string) string {
	if !p.HasPrevious() {
		return ""
	}
	return fmt.Sprintf("%s?limit=%d&offset=%d", basePath, p.Limit, p.PreviousOffset())
}
