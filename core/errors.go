package core

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FieldError ties a validation message to a request field (JSON name).
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client error (400). Fields is empty for errors about the whole request.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

// NewFieldValidationError reports `err` against a single field.
func NewFieldValidationError(field string, err error) error {
	return NewValidationError(err, FieldError{Field: field, Error: err.Error()})
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// FieldMap indexes the messages by field; the last one wins.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	m := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		m[f.Field] = f.Error
	}
	return m
}

// JoinFieldMessages renders `msgs` as sorted "field: message" pairs.
func JoinFieldMessages(msgs map[string]string) string {
	pairs := make([]string, 0, len(msgs))
	for fld, msg := range msgs {
		pairs = append(pairs, fld+": "+msg)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "; ")
}

// shutdownError asks the server to stop once the current response is sent.
type shutdownError string

func NewShutdownError(msg string) error {
	return errors.WithStack(shutdownError(msg))
}

func (s shutdownError) Error() string {
	return string(s)
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(shutdownError)
	return ok
}
