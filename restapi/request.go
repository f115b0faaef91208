/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi contains helpers for decoding JSON requests and writing JSON responses.
package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"code.cloudfoundry.org/bytefmt"
)

// RequestBodyTooLargeError is returned by a body limited with SetRequestMaxBodySize once the limit is exceeded.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

func (e *RequestBodyTooLargeError) Error() string { return e.Err.Error() }

func (e *RequestBodyTooLargeError) Unwrap() error { return e.Err }

type limitedBody struct {
	io.ReadCloser
	limit uint64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return n, &RequestBodyTooLargeError{MaxSizeBytes: b.limit, Err: err}
	}
	return n, err
}

// SetRequestMaxBodySize limits how many bytes of the request body may be read.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &limitedBody{
		ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), //nolint:gosec // limits come from config
		limit:      maxSizeBytes,
	}
}

// MalformedRequestError describes why the request could not be decoded and which status to answer with.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

func (e *MalformedRequestError) Error() string { return e.Message }

func malformed(status int, format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{HTTPStatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a 413 MalformedRequestError.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return malformed(http.StatusRequestEntityTooLarge,
		"Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes))
}

// DecodeRequestJSON decodes the body as exactly one JSON value.
// A Content-Type other than application/json is rejected, a missing one is accepted.
// Malformed input is reported as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return malformed(http.StatusUnsupportedMediaType, "failed to parse Content-Type header for request: %s", err)
		}
		if mediaType != ContentTypeAppJSON {
			return malformed(http.StatusUnsupportedMediaType, "Content-Type %q is not supported.", mediaType)
		}
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return malformed(http.StatusBadRequest, "Request body must only contain a single JSON object.")
	}
	return nil
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tooLargeErr *RequestBodyTooLargeError
	switch {
	case errors.Is(err, io.EOF):
		return malformed(http.StatusBadRequest, "Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return malformed(http.StatusBadRequest, "Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return malformed(http.StatusBadRequest, "Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return malformed(http.StatusBadRequest,
			"Request body contains an invalid value for the %q field (at position %d).", typeErr.Field, typeErr.Offset)
	case errors.As(err, &tooLargeErr):
		return NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)
	}
	return err
}
