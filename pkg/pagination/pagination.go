// Package pagination implements limit/offset paging for list endpoints.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params is a requested window of a result set.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing or malformed values fall
// back to the defaults; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

func (p Params) next(total int) (Params, bool) {
	return Params{Limit: p.Limit, Offset: p.Offset + p.Limit}, p.Offset+p.Limit < total
}

func (p Params) previous() (Params, bool) {
	return Params{Limit: p.Limit, Offset: max(p.Offset-p.Limit, 0)}, p.Offset > 0
}

// Page is one window of a list response.
type Page[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Next    string `json:"next,omitempty"`
	Prev    string `json:"previous,omitempty"`
}

// NewPage builds the page for items, linking neighbouring pages relative to
// basePath with the caller's other query parameters preserved.
func NewPage[T any](items []T, total int, p Params, basePath string, query url.Values) *Page[T] {
	if items == nil {
		items = []T{}
	}
	page := &Page[T]{Data: items, Total: total, Limit: p.Limit, Offset: p.Offset}
	if n, ok := p.next(total); ok {
		page.HasMore = true
		page.Next = link(basePath, query, n)
	}
	if prev, ok := p.previous(); ok {
		page.Prev = link(basePath, query, prev)
	}
	return page
}

func link(basePath string, query url.Values, p Params) string {
	q := make(url.Values, len(query)+2)
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	return basePath + "?" + q.Encode()
}
