package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrap(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "RuleStore", "Create", "put to KV")

	require.Error(t, err)
	assert.Equal(t, "RuleStore.Create: put to KV failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrap_NilError(t *testing.T) {
	assert.NoError(t, Wrap(nil, "RuleStore", "Create", "put to KV"))
	assert.NoError(t, WrapTransient(nil, "RuleStore", "Create", "put to KV"))
	assert.NoError(t, WrapInvalid(nil, "RuleStore", "Create", "put to KV"))
	assert.NoError(t, WrapFatal(nil, "RuleStore", "Create", "put to KV"))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	err := WrapInvalid(ErrInvalidRule, "Coordinator", "CreateRule", "validate")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Coordinator", ce.Component)
	assert.True(t, stderrors.Is(err, ErrInvalidRule))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"classified transient", WrapTransient(stderrors.New("x"), "c", "m", "a"), true},
		{"classified invalid", WrapInvalid(stderrors.New("x"), "c", "m", "a"), false},
		{"connection timeout sentinel", ErrConnectionTimeout, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"timeout in message", fmt.Errorf("dial tcp: i/o timeout"), true},
		{"plain error", stderrors.New("something else entirely"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidRule))
	assert.True(t, IsInvalid(ErrCompileFailed))
	assert.True(t, IsInvalid(WrapInvalid(stderrors.New("x"), "c", "m", "a")))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(WrapFatal(stderrors.New("x"), "c", "m", "a")))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrRuleNotFound))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidRule))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	// Unknown errors default to transient so callers may retry
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
}
