package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := NotFound("product %d not found", 42)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "product 42 not found", err.Error())
}

func TestKindOfWrapped(t *testing.T) {
	inner := InsufficientStock("insufficient stock for Coca Cola")
	wrapped := fmt.Errorf("settle order: %w", inner)

	assert.Equal(t, KindInsufficientStock, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindInsufficientStock))
}

func TestKindOfUntagged(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := Wrap(KindConflict, cause, "commit failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Contains(t, err.Error(), "deadlock")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "insufficient_stock", KindInsufficientStock.String())
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
}
