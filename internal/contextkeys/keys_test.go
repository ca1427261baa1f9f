package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetOperation(ctx))

	ctx = WithOperation(ctx, "match_all")
	assert.Equal(t, "match_all", GetOperation(ctx))
}
