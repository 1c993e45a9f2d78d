package logging

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// ContextKey defines the context key type.
type ContextKey string

// ContextIDKey holds the key of the context ID.
const ContextIDKey ContextKey = "ctx_id"

// NewContextWithID returns a copy of ctx holding a new random context ID
// under ContextIDKey.
func NewContextWithID(ctx context.Context) (context.Context, error) {
	ctxID, err := uuid.NewV4()
	if err != nil {
		return ctx, errors.Wrap(err, "new uuid error")
	}
	return context.WithValue(ctx, ContextIDKey, ctxID), nil
}

// ContextID returns the context ID stored in ctx, or uuid.Nil.
func ContextID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ContextIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
