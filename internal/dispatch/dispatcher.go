/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package dispatch performs downstream requests of a batch through pooled connection handles.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"

	"github.com/acronis/go-batchproxy/internal/api"
)

// ErrResponseTooLarge is returned when the downstream response body exceeds the configured limit.
var ErrResponseTooLarge = errors.New("downstream response is too large")

// Response is a downstream response with the body read in full.
type Response struct {
	StatusCode int
	Body       []byte
}

// Dispatcher sends requests through a Conn and reads limited responses.
type Dispatcher struct {
	maxResponseSize int64
	headers         http.Header
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg *Config) *Dispatcher {
	headers := make(http.Header, len(cfg.Headers))
	for name, value := range cfg.Headers {
		headers.Set(name, value)
	}
	return &Dispatcher{
		maxResponseSize: int64(cfg.MaxResponseSize), //nolint:gosec // reasonable config value
		headers:         headers,
	}
}

// Dispatch performs the request using the connection handle.
// Errors returned by Dispatch mean the handle should not be reused.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Conn, req api.Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, strings.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build downstream request: %w", err)
	}
	for name, value := range req.Headers {
		if strings.EqualFold(name, "Host") {
			httpReq.Host = value
			continue
		}
		httpReq.Header.Set(name, value)
	}
	for name, values := range d.headers {
		if _, ok := httpReq.Header[name]; !ok {
			httpReq.Header[name] = values
		}
	}

	resp, err := conn.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read downstream response body: %w", err)
	}
	if int64(len(body)) > d.maxResponseSize {
		return nil, fmt.Errorf("%w (limit is %d bytes)", ErrResponseTooLarge, d.maxResponseSize)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// IsTransient reports whether the error is a network failure that is worth another attempt
// on a fresh connection (refused or reset connection, connection closed before the response).
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
