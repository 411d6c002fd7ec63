package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"recordshop/internal/domain/audit"
	"recordshop/internal/domain/records"
)

// --- Request DTOs ---

// CreateRecordRequest is the request body for creating a record.
type CreateRecordRequest struct {
	Artist   string          `json:"artist" binding:"required"`
	Album    string          `json:"album" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Qty      int64           `json:"qty" binding:"min=0"`
	Format   string          `json:"format" binding:"required,record_format"`
	Category string          `json:"category" binding:"required,record_category"`
	MBID     *string         `json:"mbid"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateRecordRequest) ToEntity() *records.Record {
	rec := records.NewRecord(r.Artist, r.Album, records.Format(r.Format), records.Category(r.Category))
	rec.Price = r.Price
	rec.Qty = r.Qty
	rec.MBID = r.MBID
	rec.Normalize()
	return rec
}

// UpdateRecordRequest is a partial update; absent fields are untouched.
type UpdateRecordRequest struct {
	Artist   *string          `json:"artist" binding:"omitempty,min=1"`
	Album    *string          `json:"album" binding:"omitempty,min=1"`
	Price    *decimal.Decimal `json:"price"`
	Qty      *int64           `json:"qty" binding:"omitempty,min=0"`
	Format   *string          `json:"format" binding:"omitempty,record_format"`
	Category *string          `json:"category" binding:"omitempty,record_category"`
	MBID     *string          `json:"mbid"`
}

// ToPatch converts DTO to a domain patch.
func (r *UpdateRecordRequest) ToPatch() records.Patch {
	p := records.Patch{
		Artist: r.Artist,
		Album:  r.Album,
		Price:  r.Price,
		Qty:    r.Qty,
		MBID:   r.MBID,
	}
	if r.Format != nil {
		f := records.Format(*r.Format)
		p.Format = &f
	}
	if r.Category != nil {
		c := records.Category(*r.Category)
		p.Category = &c
	}
	return p
}

// SearchRecordsQuery holds the query string of GET /records. Page and Limit
// are pointers so an explicit 0 is rejected rather than defaulted.
type SearchRecordsQuery struct {
	Q        string `form:"q"`
	Artist   string `form:"artist"`
	Album    string `form:"album"`
	Format   string `form:"format" binding:"omitempty,record_format"`
	Category string `form:"category" binding:"omitempty,record_category"`
	Page     *int   `form:"page" binding:"omitempty,min=1,max=1000000"`
	Limit    *int   `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ToFilter converts the query to a domain search filter.
func (q *SearchRecordsQuery) ToFilter() records.SearchFilter {
	f := records.SearchFilter{
		Query:    q.Q,
		Artist:   q.Artist,
		Album:    q.Album,
		Format:   records.Format(q.Format),
		Category: records.Category(q.Category),
	}
	if q.Page != nil {
		f.Page = *q.Page
	}
	if q.Limit != nil {
		f.Limit = *q.Limit
	}
	return f
}

// --- Response DTOs ---

// RecordResponse is the API representation of a record.
type RecordResponse struct {
	ID        string          `json:"id"`
	Artist    string          `json:"artist"`
	Album     string          `json:"album"`
	Price     decimal.Decimal `json:"price"`
	Qty       int64           `json:"qty"`
	Format    string          `json:"format"`
	Category  string          `json:"category"`
	MBID      *string         `json:"mbid,omitempty"`
	TrackList []string        `json:"trackList"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// FromRecord creates RecordResponse from a domain record.
func FromRecord(r *records.Record) RecordResponse {
	tracks := r.TrackList
	if tracks == nil {
		tracks = []string{}
	}
	return RecordResponse{
		ID:        r.ID.String(),
		Artist:    r.Artist,
		Album:     r.Album,
		Price:     r.Price,
		Qty:       r.Qty,
		Format:    string(r.Format),
		Category:  string(r.Category),
		MBID:      r.MBID,
		TrackList: tracks,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// SearchRecordsResponse is one page of search results.
type SearchRecordsResponse struct {
	PageResponse
	Records []RecordResponse `json:"records"`
}

// FromSearchResult creates SearchRecordsResponse from a domain result.
func FromSearchResult(res *records.SearchResult) SearchRecordsResponse {
	out := SearchRecordsResponse{
		PageResponse: PageResponse{
			CurrentPage:  res.CurrentPage,
			PreviousPage: res.PreviousPage,
			NextPage:     res.NextPage,
			PageCount:    res.PageCount,
			Limit:        res.Limit,
		},
		Records: make([]RecordResponse, 0, len(res.Records)),
	}
	for _, r := range res.Records {
		out.Records = append(out.Records, FromRecord(r))
	}
	return out
}

// AuditEntryResponse is one entry of a record's change history.
type AuditEntryResponse struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Changes   json.RawMessage `json:"changes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditEntries maps history entries, newest first.
func FromAuditEntries(entries []audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		changes := e.Changes
		if len(changes) == 0 {
			changes = json.RawMessage("{}")
		}
		out = append(out, AuditEntryResponse{
			ID:        e.ID.String(),
			Action:    string(e.Action),
			Changes:   changes,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
