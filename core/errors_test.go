package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	errSlug := errors.New("a tenant with this slug already exists")
	err := NewFieldValidationError("slug", errSlug)

	vErr, ok := errors.Cause(errors.Wrap(err, "validating")).(*ValidationError)
	if assert.True(t, ok) {
		assert.Equal(t, map[string]string{"slug": errSlug.Error()}, vErr.FieldMap())
		assert.Equal(t, errSlug.Error(), vErr.Error())
	}
	assert.True(t, errors.Is(err, errSlug))

	assert.Nil(t, NewValidationError(errSlug).(*ValidationError).FieldMap())
}

func TestJoinFieldMessages(t *testing.T) {
	got := JoinFieldMessages(map[string]string{
		"username": "this field is required",
		"email":    "email must be a valid email address",
	})
	assert.Equal(t, "email: email must be a valid email address; username: this field is required", got)
	assert.Equal(t, "", JoinFieldMessages(nil))
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, IsShutdown(NewShutdownError("db connection lost")))
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("db connection lost"), "querying users")))
	assert.False(t, IsShutdown(errors.New("db connection lost")))
}
