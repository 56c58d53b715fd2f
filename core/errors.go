package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError reports a problem with a single request field, keyed by its JSON name.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is returned by services when the caller's input is unacceptable.
// It is rendered as 400 Bad Request.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{
		Err:    errors.New(msg),
		Fields: []FieldError{{Field: field, Error: msg}},
	}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		msgs = append(msgs, f.Field+": "+f.Error)
	}
	return strings.Join(msgs, "; ")
}

// FieldMap returns the field errors keyed by field name.
func (err ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		m[f.Field] = f.Error
	}
	return m
}

// shutdownError asks the API to stop once the current response is written.
type shutdownError struct {
	msg string
}

func NewShutdownError(msg string) error {
	return &shutdownError{msg: msg}
}

func (s *shutdownError) Error() string {
	return s.msg
}

func IsShutdown(err error) bool {
	var sd *shutdownError
	return errors.As(err, &sd)
}
