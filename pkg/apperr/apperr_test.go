package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("conversation not found")))
	assert.Equal(t, CodeForbidden, CodeOf(fmt.Errorf("editing: %w", Forbidden("not yours"))))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestMessageOfHidesUntypedErrors(t *testing.T) {
	assert.Equal(t, "You have blocked this user", MessageOf(PermissionDenied("You have blocked this user")))
	assert.Equal(t, "Something went wrong", MessageOf(errors.New("pq: connection refused")))
}

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	sentinel := InvalidState("conversation is no longer active")
	wrapped := fmt.Errorf("sending: %w", sentinel)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, InvalidState("something else")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(CodeInternal, "resolving attachment", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "resolving attachment: dial tcp: timeout", err.Error())
}
