package play

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a play error by where it originated.
type ErrorClass string

const (
	// ErrorClassConfig indicates an invalid selection or model state.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassConnectivity indicates the ship's daemon could not be
	// reached.
	ErrorClassConnectivity ErrorClass = "connectivity"

	// ErrorClassDaemon indicates a daemon operation failed.
	ErrorClassDaemon ErrorClass = "daemon"

	// ErrorClassReadiness indicates a lifecycle check never passed.
	ErrorClassReadiness ErrorClass = "readiness"

	// ErrorClassInternal indicates a bug or unexpected state.
	ErrorClassInternal ErrorClass = "internal"
)

// Error is a classified play error carrying the entity and operation
// it occurred on.
type Error struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Instance is the instance the error occurred on, if any.
	Instance string

	// Op is the operation being performed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("[%s] %s (instance=%s, op=%s): %s",
			e.Class, e.Message, e.Instance, e.Op, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewConnectivityError creates a connectivity error.
func NewConnectivityError(message string, err error) *Error {
	return &Error{Class: ErrorClassConnectivity, Message: message, Err: err}
}

// NewDaemonError creates a daemon error.
func NewDaemonError(message string, err error) *Error {
	return &Error{Class: ErrorClassDaemon, Message: message, Err: err}
}

// NewReadinessError creates a readiness error.
func NewReadinessError(message string, err error) *Error {
	return &Error{Class: ErrorClassReadiness, Message: message, Err: err}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, err error) *Error {
	return &Error{Class: ErrorClassInternal, Message: message, Err: err}
}

// WithInstance attaches the instance name.
func (e *Error) WithInstance(instance string) *Error {
	e.Instance = instance
	return e
}

// WithOp attaches the operation name.
func (e *Error) WithOp(op Op) *Error {
	e.Op = string(op)
	return e
}

// ClassOf returns the class of a play error, or ErrorClassInternal for
// unclassified errors.
func ClassOf(err error) ErrorClass {
	var playErr *Error
	if errors.As(err, &playErr) {
		return playErr.Class
	}
	return ErrorClassInternal
}
