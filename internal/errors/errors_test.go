package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Controller unreachable", f.New(errors.ErrUnreachable).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrUnreachable, "custom").Error())
	assert.Equal(t, "Invalid argument provided: 101", f.WithData(errors.ErrInvalidArgument, 101).Error())

	cause := stderrors.New("disk full")
	wrapped := f.Wrap(errors.ErrPersistenceFailed, cause)
	assert.Equal(t, "Failed to persist policy: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrSensorsNotReady)
	outer := fmt.Errorf("read sensors: %w", f.Wrap(errors.ErrCommandFailed, inner))

	assert.True(t, errors.HasCode(outer, errors.ErrCommandFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrSensorsNotReady))
	assert.False(t, errors.HasCode(outer, errors.ErrUnreachable))
	assert.False(t, errors.HasCode(nil, errors.ErrUnreachable))

	assert.Equal(t, errors.ErrCommandFailed, errors.CodeOf(outer))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}
