package rpcrouter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"vention.dev/cellrt/internal/fsm"
)

func TestCodeNormalizeRewritesUnknownCodes(t *testing.T) {
	assert.Equal(t, CodeInvalidArgument, Code("invalid_argument").normalize())
	assert.Equal(t, CodeUnknown, Code("not_a_real_code").normalize())
}

func TestClassifyMapsFSMErrors(t *testing.T) {
	notAllowed := &fsm.ErrNotAllowed{Trigger: "start", CurrentState: "fault"}
	assert.Equal(t, CodeFailedPrecondition, classify(notAllowed))

	guardFailed := &fsm.ErrGuardFailed{Trigger: "place", CurrentState: "picking"}
	assert.Equal(t, CodeFailedPrecondition, classify(guardFailed))

	guardErr := &fsm.GuardError{Trigger: "place", Source: "picking", Err: errors.New("boom")}
	assert.Equal(t, CodeInternal, classify(guardErr))
}

func TestClassifyMapsSentinelsAndDeadline(t *testing.T) {
	assert.Equal(t, CodeDeadlineExceeded, classify(context.DeadlineExceeded))
	assert.Equal(t, CodeInvalidArgument, classify(ErrInvalidArgument))
	assert.Equal(t, CodeUnauthenticated, classify(ErrUnauthenticated))
}

func TestClassifyDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, classify(errors.New("mystery failure")))
}

func TestToWireErrorPreservesAlreadyClassifiedError(t *testing.T) {
	original := NewError(CodeNotFound, "no such cell")
	got := toWireError(original)
	assert.Same(t, original, got)
}

func TestToWireErrorClassifiesPlainError(t *testing.T) {
	got := toWireError(errors.New("mystery failure"))
	assert.Equal(t, CodeInternal, got.Code)
}
