package logging

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

func TestContextID(t *testing.T) {
	assert := require.New(t)

	assert.Equal(uuid.Nil, ContextID(context.Background()))

	ctx, err := NewContextWithID(context.Background())
	assert.NoError(err)
	id := ContextID(ctx)
	assert.NotEqual(uuid.Nil, id)

	ctx2, err := NewContextWithID(context.Background())
	assert.NoError(err)
	assert.NotEqual(id, ContextID(ctx2))
}
