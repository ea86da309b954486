package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHeaders(t *testing.T) {
	assert.Equal(t, "t-1", FromHeaders("t-1", "r-1"))
	assert.Equal(t, "r-1", FromHeaders("", "r-1"))

	a, b := FromHeaders("", ""), FromHeaders("", "")
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
	ctx := WithContext(context.Background(), "abc")
	assert.Equal(t, "abc", FromContext(ctx))
}
