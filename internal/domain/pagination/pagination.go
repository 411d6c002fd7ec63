// Package pagination computes page metadata for offset-paginated queries.
//
// The calculator never fails: out of range pages are tolerated and the
// previous/next links are clamped into [1, PageCount].
package pagination

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 10
	// MaxPage is the highest page the HTTP API accepts.
	MaxPage = 1_000_000
)

// Page is the metadata returned next to a page of results.
type Page struct {
	CurrentPage  int `json:"currentPage"`
	PreviousPage int `json:"previousPage"`
	NextPage     int `json:"nextPage"`
	PageCount    int `json:"pageCount"`
	Limit        int `json:"limit"`
}

// Request is a normalized (page, limit) pair.
type Request struct {
	Page  int
	Limit int
}

// NewRequest applies defaults to non-positive values.
func NewRequest(page, limit int) Request {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return Request{Page: page, Limit: limit}
}

// Skip returns the number of rows to skip before this page, saturating at
// math.MaxInt instead of overflowing.
func (r Request) Skip() int {
	r = NewRequest(r.Page, r.Limit)
	if r.Page-1 > math.MaxInt/r.Limit {
		return math.MaxInt
	}
	return (r.Page - 1) * r.Limit
}

// Calculate derives page metadata from the total number of matches.
func Calculate(totalCount int64, r Request) Page {
	r = NewRequest(r.Page, r.Limit)

	limit := int64(r.Limit)
	pageCount := int((totalCount + limit - 1) / limit)
	if pageCount < 1 {
		pageCount = 1
	}

	previous := r.Page - 1
	if r.Page == 1 {
		previous = r.Page
	}

	next := pageCount
	if r.Page < pageCount-1 {
		next = r.Page + 1
	}

	return Page{
		CurrentPage:  r.Page,
		PreviousPage: previous,
		NextPage:     next,
		PageCount:    pageCount,
		Limit:        r.Limit,
	}
}
