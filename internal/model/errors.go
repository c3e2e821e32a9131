package model

import (
	"errors"
	"fmt"
)

// Sentinels for classifying rejected writes with errors.Is.
var (
	ErrMissingReference = errors.New("missing reference")
	ErrModelNotFound    = errors.New("referenced model does not exist")
	ErrStore            = errors.New("reference lookup failed")
	ErrMalformedID      = errors.New("malformed identifier")
)

// ConfigurationError means a schema references a model name that the
// registry does not know. It is never caused by document contents.
type ConfigurationError struct {
	Field    string
	Model    string
	RefModel string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("referenced model %q for path %q of model %q does not exist", e.RefModel, e.Field, e.Model)
}

func (e *ConfigurationError) Unwrap() error { return ErrModelNotFound }

// MissingReferenceError means a candidate identifier has no matching
// document in the referenced model.
type MissingReferenceError struct {
	Field    string
	Model    string
	RefModel string
	ID       string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("invalid reference id %q to document in model %q for path %q of model %q", e.ID, e.RefModel, e.Field, e.Model)
}

func (e *MissingReferenceError) Unwrap() error { return ErrMissingReference }

// StoreError wraps a failed existence lookup, including identifiers the
// store cannot interpret.
type StoreError struct {
	Field    string
	Model    string
	RefModel string
	ID       string
	Err      error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("checking path %q of model %q against model %q: %v", e.Field, e.Model, e.RefModel, e.Err)
	}
	return fmt.Sprintf("checking reference id %q for path %q of model %q against model %q: %v", e.ID, e.Field, e.Model, e.RefModel, e.Err)
}

// Is matches ErrStore in addition to whatever the wrapped error matches.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }
