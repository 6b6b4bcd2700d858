package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "call provider").WithNode("llm-1").WithCause(cause).WithRetryable(true)

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")

	// The code survives further wrapping.
	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.Equal(t, ErrUpstreamError, GetErrorCode(wrapped))
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil, ErrNodeExecution))

	e := NewError(ErrTimeout, "slow")
	assert.Same(t, e, AsError(e, ErrNodeExecution))

	foreign := errors.New("plain")
	converted := AsError(foreign, ErrNodeExecution)
	assert.Equal(t, ErrNodeExecution, converted.Code)
	assert.ErrorIs(t, converted, foreign)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewError(ErrRunLimitExceeded, "")))
	assert.True(t, IsFatal(NewError(ErrInternalInconsistency, "")))
	assert.False(t, IsFatal(NewError(ErrNodeExecution, "")))
	assert.False(t, IsFatal(errors.New("plain")))
}
