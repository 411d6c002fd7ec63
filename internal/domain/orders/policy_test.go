package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordshop/internal/core/apperror"
)

func TestPolicy_Default(t *testing.T) {
	p, err := NewPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy, p.Expression())

	assert.NoError(t, p.Admit("r", 1))
	assert.NoError(t, p.Admit("r", 10000))

	err = p.Admit("r", 10001)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.True(t, apperror.HasCode(p.Admit("r", 0), apperror.CodeValidation))
}

func TestPolicy_Custom(t *testing.T) {
	p, err := NewPolicy(`qty <= 2 || record_id.startsWith("bulk-")`)
	require.NoError(t, err)

	assert.NoError(t, p.Admit("abc", 2))
	assert.Error(t, p.Admit("abc", 3))
	assert.NoError(t, p.Admit("bulk-1", 500))
}

func TestPolicy_RejectsBadExpressions(t *testing.T) {
	_, err := NewPolicy("qty +")
	assert.Error(t, err)

	_, err = NewPolicy("qty + 1")
	assert.ErrorContains(t, err, "must return bool")

	_, err = NewPolicy("unknown_var > 1")
	assert.Error(t, err)
}
