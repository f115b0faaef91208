/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package batch

import (
	"net/http"

	"github.com/acronis/go-batchproxy/internal/api"
)

// Outcome is a final state of a single item of the batch.
type Outcome int

// Possible outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeBackpressure
	OutcomeTimeout
	OutcomeDownstreamError
)

// Outcomes lists all outcomes, e.g. to initialize metric label values.
var Outcomes = []Outcome{OutcomeSuccess, OutcomeBackpressure, OutcomeTimeout, OutcomeDownstreamError}

// String returns a low-cardinality name usable as a metric label.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBackpressure:
		return "backpressure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeDownstreamError:
		return "downstream_error"
	default:
		return "unknown"
	}
}

// Status codes reported for items that did not get a downstream response.
const (
	StatusBackpressure    = http.StatusServiceUnavailable
	StatusTimeout         = http.StatusGatewayTimeout
	StatusDownstreamError = http.StatusBadGateway
)

const timeoutReason = "timeout"

// Result is the result of a single item.
type Result struct {
	ID      string
	Outcome Outcome

	// StatusCode and Body of the downstream response (success only).
	StatusCode int
	Body       []byte

	// Reason describes a timeout or a downstream failure.
	Reason string

	// QueueCapacity and QueueFreeSpace are the admission snapshot (backpressure only).
	QueueCapacity  int
	QueueFreeSpace int
}

func successResult(id string, statusCode int, body []byte) Result {
	return Result{ID: id, Outcome: OutcomeSuccess, StatusCode: statusCode, Body: body}
}

func backpressureResult(id string, capacity, freeSpace int) Result {
	if freeSpace < 0 {
		freeSpace = 0
	}
	return Result{ID: id, Outcome: OutcomeBackpressure, QueueCapacity: capacity, QueueFreeSpace: freeSpace}
}

func timeoutResult(id string) Result {
	return Result{ID: id, Outcome: OutcomeTimeout, Reason: timeoutReason}
}

func downstreamErrorResult(id string, err error) Result {
	return Result{ID: id, Outcome: OutcomeDownstreamError, Reason: err.Error()}
}

// APIResponse converts the result to its wire representation.
func (r Result) APIResponse() api.Response {
	switch r.Outcome {
	case OutcomeSuccess:
		return api.Response{ID: r.ID, StatusCode: r.StatusCode, Body: r.Body}
	case OutcomeBackpressure:
		return api.Response{ID: r.ID, StatusCode: StatusBackpressure, Backpressure: &api.Backpressure{
			QueueCapacity:  r.QueueCapacity,
			QueueFreeSpace: r.QueueFreeSpace,
		}}
	case OutcomeTimeout:
		return api.Response{ID: r.ID, StatusCode: StatusTimeout, Error: r.Reason}
	default:
		return api.Response{ID: r.ID, StatusCode: StatusDownstreamError, Error: r.Reason}
	}
}
