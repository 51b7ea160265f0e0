package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Errorf(ModelLoadFailure, "bad header in %s", "best.onnx")

	assert.True(t, errors.Is(err, ErrModelLoadFailure))
	assert.False(t, errors.Is(err, ErrModelUnavailable))
	assert.False(t, errors.Is(err, ErrProcessingFailure))
	assert.Equal(t, "model_load_failure: bad header in best.onnx", err.Error())
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := fmt.Errorf("detect: %w", NewError(ProcessingFailure, cause))

	assert.Equal(t, ProcessingFailure, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "unexpected EOF", Cause(err))
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestError_WithoutCause(t *testing.T) {
	assert.Equal(t, "model_unavailable", ErrModelUnavailable.Error())
	assert.Equal(t, "model_unavailable", Cause(ErrModelUnavailable))
}
