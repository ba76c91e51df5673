package mail

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := wrap("connect", cause)

	assert.EqualError(t, err, "imap connect: connection refused")
	assert.ErrorIs(t, err, cause)

	var mailErr *Error
	assert.ErrorAs(t, err, &mailErr)
	assert.Equal(t, "connect", mailErr.Op)
}

func TestWrap_NilPassesThrough(t *testing.T) {
	assert.NoError(t, wrap("expunge", nil))
}
