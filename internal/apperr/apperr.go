// Package apperr defines the error taxonomy shared by the builder, the
// players and the renderer.
package apperr

import (
	"errors"
	"fmt"
)

// InputError reports empty or malformed narration data. It is the only
// fatal class: the builder aborts and returns it to the caller.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input: %s: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ExternalServiceError reports a failed classifier, synthesizer or upload call.
type ExternalServiceError struct {
	Service string
	Ref     string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Service, e.Ref, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// MediaError reports an audio or image resource that failed to load or play.
type MediaError struct {
	Op  string
	Ref string
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s %q: %v", e.Op, e.Ref, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// RenderError reports a texture or shader program failure.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func Input(op string, err error) error {
	return &InputError{Op: op, Err: err}
}

func External(service, ref string, err error) error {
	return &ExternalServiceError{Service: service, Ref: ref, Err: err}
}

func Media(op, ref string, err error) error {
	return &MediaError{Op: op, Ref: ref, Err: err}
}

func Render(op string, err error) error {
	return &RenderError{Op: op, Err: err}
}

// IsRecoverable reports whether err belongs to a class that degrades to a
// fallback instead of aborting.
func IsRecoverable(err error) bool {
	var ext *ExternalServiceError
	var med *MediaError
	var ren *RenderError
	return errors.As(err, &ext) || errors.As(err, &med) || errors.As(err, &ren)
}

// IsInput reports whether err is an InputError.
func IsInput(err error) bool {
	var in *InputError
	return errors.As(err, &in)
}
