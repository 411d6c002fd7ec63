package records

import (
	"strings"

	"recordshop/internal/domain/filter"
	"recordshop/internal/domain/pagination"
)

// SearchFilter is a sparse search request. Empty strings mean "absent".
// Format and Category are expected to be valid enum values when present.
type SearchFilter struct {
	Query    string
	Artist   string
	Album    string
	Format   Format
	Category Category
	Page     int
	Limit    int
}

// SearchResult is one page of records with its page metadata.
type SearchResult struct {
	pagination.Page
	Records []*Record `json:"records"`
}

// BuildQuery translates f into a predicate and a sort.
//
// The free-text query contributes one term: a full-text match over
// TextSearchFields OR a prefix match on artist, album or category, and
// switches the sort to relevance. Artist and album add prefix terms; format
// and category add exact terms. Terms are ANDed.
func BuildQuery(f SearchFilter) (filter.Predicate, filter.Sort) {
	var (
		pred filter.Predicate
		sort filter.Sort
	)

	if q := strings.TrimSpace(f.Query); q != "" {
		pred = pred.And(
			filter.Item{Fields: TextSearchFields, Operator: filter.TextMatch, Value: q},
			filter.Item{Field: FieldArtist, Operator: filter.Prefix, Value: q},
			filter.Item{Field: FieldAlbum, Operator: filter.Prefix, Value: q},
			filter.Item{Field: FieldCategory, Operator: filter.Prefix, Value: q},
		)
		sort = filter.Sort{Kind: filter.SortRelevanceDesc, Query: q, Fields: TextSearchFields}
	}

	if artist := strings.TrimSpace(f.Artist); artist != "" {
		pred = pred.And(filter.Item{Field: FieldArtist, Operator: filter.Prefix, Value: artist})
	}
	if album := strings.TrimSpace(f.Album); album != "" {
		pred = pred.And(filter.Item{Field: FieldAlbum, Operator: filter.Prefix, Value: album})
	}
	if f.Format != "" {
		pred = pred.And(filter.Item{Field: FieldFormat, Operator: filter.Equal, Value: string(f.Format)})
	}
	if f.Category != "" {
		pred = pred.And(filter.Item{Field: FieldCategory, Operator: filter.Equal, Value: string(f.Category)})
	}

	return pred, sort
}
