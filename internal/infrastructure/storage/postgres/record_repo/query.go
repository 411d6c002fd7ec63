package record_repo

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"

	"recordshop/internal/domain/filter"
	"recordshop/internal/domain/records"
)

// searchVectorColumn is the stored tsvector over records.TextSearchFields,
// backed by a GIN index.
const searchVectorColumn = "search_vector"

// textConfig is the text search configuration used for both the stored
// vector and the query. 'simple' lowercases without stemming.
const textConfig = "simple"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// filterColumns whitelists the columns a predicate may reference.
var filterColumns = map[string]bool{
	records.FieldArtist:   true,
	records.FieldAlbum:    true,
	records.FieldFormat:   true,
	records.FieldCategory: true,
}

// applyPredicate adds one WHERE clause per term of pred.
func applyPredicate(q squirrel.SelectBuilder, pred filter.Predicate) (squirrel.SelectBuilder, error) {
	for _, group := range pred.Terms {
		cond, err := groupSQL(group)
		if err != nil {
			return q, err
		}
		q = q.Where(cond)
	}
	return q, nil
}

func groupSQL(g filter.Group) (squirrel.Sqlizer, error) {
	if len(g.AnyOf) == 0 {
		return nil, fmt.Errorf("empty filter group")
	}
	if len(g.AnyOf) == 1 {
		return itemSQL(g.AnyOf[0])
	}
	or := make(squirrel.Or, 0, len(g.AnyOf))
	for _, item := range g.AnyOf {
		cond, err := itemSQL(item)
		if err != nil {
			return nil, err
		}
		or = append(or, cond)
	}
	return or, nil
}

func itemSQL(item filter.Item) (squirrel.Sqlizer, error) {
	switch item.Operator {
	case filter.Equal:
		if !filterColumns[item.Field] {
			return nil, fmt.Errorf("invalid filter column: %s", item.Field)
		}
		return squirrel.Eq{item.Field: item.Value}, nil

	case filter.Prefix:
		if !filterColumns[item.Field] {
			return nil, fmt.Errorf("invalid filter column: %s", item.Field)
		}
		// Prefix columns hold lowercase text, so a lowercased LIKE matches
		// case-insensitively and can use the text_pattern_ops indexes.
		return squirrel.Like{item.Field: escapeLike(strings.ToLower(item.Value)) + "%"}, nil

	case filter.TextMatch:
		vector, err := vectorSQL(item.Fields)
		if err != nil {
			return nil, err
		}
		return squirrel.Expr(vector+" @@ plainto_tsquery('"+textConfig+"', ?)", item.Value), nil
	}
	return nil, fmt.Errorf("unsupported filter operator: %s", item.Operator)
}

// vectorSQL returns the tsvector expression for fields, preferring the
// indexed column when fields are exactly the indexed ones.
func vectorSQL(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("text match without fields")
	}
	if slices.Equal(fields, records.TextSearchFields) {
		return searchVectorColumn, nil
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if !filterColumns[f] {
			return "", fmt.Errorf("invalid text search column: %s", f)
		}
		parts = append(parts, "coalesce("+f+"::text, '')")
	}
	return "to_tsvector('" + textConfig + "', " + strings.Join(parts, " || ' ' || ") + ")", nil
}

// applySort orders the page. Ties, and the natural order, fall back to the
// UUIDv7 primary key, which follows insertion order.
func applySort(q squirrel.SelectBuilder, s filter.Sort) (squirrel.SelectBuilder, error) {
	if s.Kind == filter.SortRelevanceDesc {
		vector, err := vectorSQL(s.Fields)
		if err != nil {
			return q, err
		}
		q = q.OrderByClause("ts_rank("+vector+", plainto_tsquery('"+textConfig+"', ?)) DESC", s.Query)
	}
	return q.OrderBy("id"), nil
}
