package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelation(t *testing.T) {
	_, ok := CorrelationFrom(context.Background())
	assert.False(t, ok)
	assert.Empty(t, RequestID(context.Background()))

	ctx := WithCorrelation(context.Background(), Correlation{TraceID: "t-9", RequestID: "r-9"})
	c, ok := CorrelationFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t-9", c.TraceID)
	assert.Equal(t, "r-9", RequestID(ctx))
}
