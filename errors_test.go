package binder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbinder/binder/internal/errs"
)

func TestErrorImplementsErrorInterface(t *testing.T) {
	e := NewError("BC_TRANSACTION", ErrCodeDeadReply, "target process not found")
	assert.Contains(t, e.Error(), "op=BC_TRANSACTION")
	assert.Contains(t, e.Error(), "target process not found")
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := NewError("op1", ErrCodeBusy, "bound")
	b := NewError("op2", ErrCodeBusy, "different message, same code")
	c := NewError("op3", ErrCodePermissionDenied, "different code")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWrapInternalMapsKindToCode(t *testing.T) {
	inner := errs.New("set_context_manager", errs.Busy, "already bound").WithProcess(7)
	wrapped := wrapInternal(inner)

	var be *Error
	require.True(t, errors.As(wrapped, &be))
	assert.Equal(t, ErrCodeBusy, be.Code)
	assert.Equal(t, uint32(7), be.ProcessID)
	assert.Equal(t, "set_context_manager", be.Op)
}

func TestWrapInternalNilIsNil(t *testing.T) {
	assert.Nil(t, wrapInternal(nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("op", ErrCodeNoSpace, "buffer too small")
	assert.True(t, IsCode(err, ErrCodeNoSpace))
	assert.False(t, IsCode(err, ErrCodeFault))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeNoSpace))
}
