package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	oldState := map[string]any{"price": "10.00", "qty": int64(5), "mbid": "a"}
	newState := map[string]any{"price": "12.50", "qty": int64(5), "tracklist": []string{"x"}}

	changes := Diff(oldState, newState)

	assert.Equal(t, map[string]any{"old": "10.00", "new": "12.50"}, changes["price"])
	assert.Equal(t, map[string]any{"old": "a", "new": nil}, changes["mbid"])
	assert.Equal(t, map[string]any{"old": nil, "new": []string{"x"}}, changes["tracklist"])
	assert.NotContains(t, changes, "qty")
}
