// Package filter describes storage-agnostic query predicates.
//
// A Predicate is a conjunction of Groups; a Group is a disjunction of Items.
// Stores translate it into their own query language (SQL, in-memory scan).
package filter

// ComparisonType defines how an Item compares a field with its value.
type ComparisonType string

const (
	Equal     ComparisonType = "eq"     // exact match
	Prefix    ComparisonType = "prefix" // case-insensitive, anchored at the start of the field
	TextMatch ComparisonType = "text"   // full-text match over Fields
)

// Item is one field constraint.
type Item struct {
	Field    string         `json:"field,omitempty"`  // column name (snake_case)
	Fields   []string       `json:"fields,omitempty"` // TextMatch only: indexed text fields
	Operator ComparisonType `json:"operator"`
	Value    string         `json:"value"`
}

// Group is satisfied when any of its items is.
type Group struct {
	AnyOf []Item `json:"anyOf"`
}

// Predicate is satisfied when every group is. An empty predicate matches everything.
type Predicate struct {
	Terms []Group `json:"terms,omitempty"`
}

// MatchesAll reports whether the predicate has no constraints.
func (p Predicate) MatchesAll() bool {
	return len(p.Terms) == 0
}

// And appends a term made of the given alternatives.
func (p Predicate) And(anyOf ...Item) Predicate {
	if len(anyOf) == 0 {
		return p
	}
	terms := make([]Group, len(p.Terms), len(p.Terms)+1)
	copy(terms, p.Terms)
	p.Terms = append(terms, Group{AnyOf: anyOf})
	return p
}

// SortKind is the ordering requested from the store.
type SortKind string

const (
	// SortNatural leaves ordering to the store.
	SortNatural SortKind = ""
	// SortRelevanceDesc orders by full-text relevance, best match first.
	SortRelevanceDesc SortKind = "relevance_desc"
)

// Sort is the ordering half of a query.
type Sort struct {
	Kind   SortKind `json:"kind,omitempty"`
	Query  string   `json:"query,omitempty"`
	Fields []string `json:"fields,omitempty"`
}
