/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import "fmt"

// Error is the body of an API error: {"error": {"domain": ..., "code": ..., "message": ..., "context": ...}}.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Common error codes.
const (
	ErrCodeInternal       = "internalError"
	ErrCodeInvalidRequest = "invalidRequest"
)

// ErrMessageInternal is the message of internal errors. Details are logged, never sent.
const ErrMessageInternal = "Internal error."

// NewError creates a new Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates an internal error of the domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext sets a context value and returns the error for chaining.
func (e *Error) AddContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Code, e.Message)
}
