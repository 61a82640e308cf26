package config

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("config file not found")

// Error is a configuration problem: a missing or invalid provider, credential,
// or template. It is never retried and always carries a remediation hint.
type Error struct {
	Msg    string
	Remedy string
	Err    error
}

// NewError builds an *Error with a formatted message.
func NewError(remedy, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Remedy: remedy}
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Remedy != "" {
		msg += "\nfix: " + e.Remedy
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
