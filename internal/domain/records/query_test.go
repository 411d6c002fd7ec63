package records

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recordshop/internal/domain/filter"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    SearchFilter
		wantPred filter.Predicate
		wantSort filter.Sort
	}{
		{
			name:     "empty filter matches everything",
			input:    SearchFilter{},
			wantPred: filter.Predicate{},
			wantSort: filter.Sort{},
		},
		{
			name:  "artist is a prefix match without sort",
			input: SearchFilter{Artist: "john"},
			wantPred: filter.Predicate{Terms: []filter.Group{
				{AnyOf: []filter.Item{{Field: "artist", Operator: filter.Prefix, Value: "john"}}},
			}},
			wantSort: filter.Sort{},
		},
		{
			name:  "free text is one OR term with relevance sort",
			input: SearchFilter{Query: "test"},
			wantPred: filter.Predicate{Terms: []filter.Group{
				{AnyOf: []filter.Item{
					{Fields: []string{"artist", "album", "category"}, Operator: filter.TextMatch, Value: "test"},
					{Field: "artist", Operator: filter.Prefix, Value: "test"},
					{Field: "album", Operator: filter.Prefix, Value: "test"},
					{Field: "category", Operator: filter.Prefix, Value: "test"},
				}},
			}},
			wantSort: filter.Sort{
				Kind:   filter.SortRelevanceDesc,
				Query:  "test",
				Fields: []string{"artist", "album", "category"},
			},
		},
		{
			name: "all fields are ANDed",
			input: SearchFilter{
				Query: "wall", Artist: "pink", Album: "the", Format: FormatVinyl, Category: CategoryRock,
			},
			wantPred: filter.Predicate{Terms: []filter.Group{
				{AnyOf: []filter.Item{
					{Fields: []string{"artist", "album", "category"}, Operator: filter.TextMatch, Value: "wall"},
					{Field: "artist", Operator: filter.Prefix, Value: "wall"},
					{Field: "album", Operator: filter.Prefix, Value: "wall"},
					{Field: "category", Operator: filter.Prefix, Value: "wall"},
				}},
				{AnyOf: []filter.Item{{Field: "artist", Operator: filter.Prefix, Value: "pink"}}},
				{AnyOf: []filter.Item{{Field: "album", Operator: filter.Prefix, Value: "the"}}},
				{AnyOf: []filter.Item{{Field: "format", Operator: filter.Equal, Value: "vinyl"}}},
				{AnyOf: []filter.Item{{Field: "category", Operator: filter.Equal, Value: "rock"}}},
			}},
			wantSort: filter.Sort{
				Kind:   filter.SortRelevanceDesc,
				Query:  "wall",
				Fields: []string{"artist", "album", "category"},
			},
		},
		{
			name:  "category is exact, not prefix",
			input: SearchFilter{Category: CategoryHipHop},
			wantPred: filter.Predicate{Terms: []filter.Group{
				{AnyOf: []filter.Item{{Field: "category", Operator: filter.Equal, Value: "hip-hop"}}},
			}},
		},
		{
			name:     "blank strings are absent",
			input:    SearchFilter{Query: "   ", Artist: " "},
			wantPred: filter.Predicate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, sort := BuildQuery(tt.input)
			assert.Equal(t, tt.wantPred, pred)
			assert.Equal(t, tt.wantSort, sort)
		})
	}
}

func TestBuildQuery_Deterministic(t *testing.T) {
	f := SearchFilter{Query: "abba", Format: FormatCD}
	p1, s1 := BuildQuery(f)
	p2, s2 := BuildQuery(f)
	assert.Equal(t, p1, p2)
	assert.Equal(t, s1, s2)
	assert.False(t, p1.MatchesAll())
}
