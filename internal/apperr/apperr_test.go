package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, Code("")},
		{"typed", New(CodeNotFound, "no such post"), CodeNotFound},
		{"wrapped cause", Wrap(errors.New("pq: connection refused"), CodeInternal, "store"), CodeInternal},
		{"foreign", errors.New("boom"), CodeInternal},
		{"typed inside fmt wrap", fmt.Errorf("handler: %w", New(CodeConflict, "username taken")), CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "apply delta")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Contains(t, err.Error(), "disk full")
}

func TestWithDetail(t *testing.T) {
	err := New(CodeRateLimited, "hourly limit reached").
		WithDetail("limit", 1).
		WithDetail("resetAt", int64(1700003600000))

	assert.Equal(t, 1, err.Details["limit"])
	assert.Equal(t, int64(1700003600000), err.Details["resetAt"])
}

func TestFromPassesThrough(t *testing.T) {
	orig := New(CodeForbidden, "not the author")
	assert.Same(t, orig, From(orig))
	assert.Nil(t, From(nil))
}
