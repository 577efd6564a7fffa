package swaperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("execution reverted")
	err := SubmissionFailed("approve", cause)

	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.NotErrorIs(t, err, ErrUserRejected)
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("request approval: %w", err)
	assert.ErrorIs(t, wrapped, ErrSubmissionFailed)
	assert.Equal(t, CodeSubmissionFailed, CodeOf(wrapped))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "swap: user_rejected: denied", UserRejected("swap", errors.New("denied")).Error())
	assert.Equal(t, "no_route", ErrNoRoute.Error())
	assert.Equal(t, "resolve: stale_result", New(CodeStaleResult, "resolve", nil).Error())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestInvariant(t *testing.T) {
	require.NotPanics(t, func() { Invariant(true, "never") })
	require.PanicsWithValue(t, "swap invariant violated: missing input amount", func() {
		Invariant(false, "missing %s amount", "input")
	})
}
