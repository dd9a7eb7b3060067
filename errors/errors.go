package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// Code classifies an Error by the stage of a run that produced it
type Code int

const (
	// Internal is an unexpected failure or misuse of the api
	Internal Code = iota + 1
	// Configuration indicates missing or invalid settings - it is fatal at startup
	Configuration
	// Connection indicates the data source connection could not be opened
	Connection
	// Schema indicates the metadata probe of the query failed
	Schema
	// Fetch indicates a fault while executing the query or reading rows
	Fetch
	// Coercion indicates a value could not be represented under its column's type
	Coercion
	// Publish indicates a payload could not be handed to the sink
	Publish
)

var codeNames = map[Code]string{
	Internal:      "internal",
	Configuration: "configuration",
	Connection:    "connection",
	Schema:        "schema",
	Fetch:         "fetch",
	Coercion:      "coercion",
	Publish:       "publish",
}

// String returns the name of the code
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Err      error    `json:"-"`
}

type jsonError struct {
	Code     Code     `json:"code"`
	Kind     string   `json:"kind"`
	Messages []string `json:"messages"`
	Err      string   `json:"err,omitempty"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	je := jsonError{
		Code:     e.Code,
		Kind:     e.Code.String(),
		Messages: e.Messages,
	}
	if e.Err != nil {
		je.Err = e.Err.Error()
	}
	bits, _ := json.Marshal(je)
	return string(bits)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Err:      nil,
	}
}

// New creates a new error with the given code
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{
		Code:     0,
		Messages: nil,
		Err:      err,
	}
}

// Is returns true if the error carries the given code
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Extract(err).Code == code
}

// Wrap wraps the given error and returns a new one. A nil error stays nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}
