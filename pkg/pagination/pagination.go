package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds page/limit pagination parameters.
type Params struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// DefaultParams returns the first page with DefaultLimit items.
func DefaultParams() Params {
	return Params{Page: 1, Limit: DefaultLimit}
}

// New builds Params, falling back to defaults for out-of-range values.
func New(page, limit int) Params {
	p := DefaultParams()
	if page > 0 {
		p.Page = page
	}
	if limit > 0 && limit <= MaxLimit {
		p.Limit = limit
	}
	p.Offset = (p.Page - 1) * p.Limit
	return p
}

// FromRequest reads the "page" and "limit" query parameters. Invalid values
// are ignored.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return New(page, limit)
}

// Result is one page of items plus navigation metadata.
type Result[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
	NextPage   *int `json:"next_page"`
	PrevPage   *int `json:"prev_page"`
}

// NewResult wraps items, the page for params out of total.
func NewResult[T any](items []T, total int, params Params) Result[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if params.Limit > 0 {
		totalPages = (total + params.Limit - 1) / params.Limit
	}

	res := Result[T]{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
	if res.HasNext {
		next := params.Page + 1
		res.NextPage = &next
	}
	if res.HasPrev {
		prev := params.Page - 1
		res.PrevPage = &prev
	}
	return res
}
