// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// --- Error Response ---

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// --- Pagination ---

// PageResponse is the page metadata returned next to a search page.
type PageResponse struct {
	CurrentPage  int `json:"currentPage"`
	PreviousPage int `json:"previousPage"`
	NextPage     int `json:"nextPage"`
	PageCount    int `json:"pageCount"`
	Limit        int `json:"limit"`
}
