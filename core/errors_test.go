package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewFieldError("tx_hash", "payment reference already used")
	var vErr *ValidationError
	if assert.True(t, errors.As(err, &vErr)) {
		assert.Equal(t, map[string]string{"tx_hash": "payment reference already used"}, vErr.FieldMap())
	}
	assert.Equal(t, "payment reference already used", err.Error())

	err = NewValidationError(nil, FieldError{"name", "required"}, FieldError{"email", "invalid"})
	assert.Equal(t, "name: required; email: invalid", err.Error())
}

func TestIsShutdown(t *testing.T) {
	err := NewShutdownError("rolling back transaction: conn closed")
	assert.True(t, IsShutdown(err))
	assert.True(t, IsShutdown(errors.Wrap(err, "placing order")))
	assert.False(t, IsShutdown(errors.New("boom")))
}
