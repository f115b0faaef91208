/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api contains the wire types of the batch proxy and the decoder of inbound batch requests.
package api

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acronis/go-batchproxy/restapi"
)

// BatchRequest is a body of the POST /proxy request.
type BatchRequest struct {
	// TimeoutS is the batch timeout in seconds. The default timeout is used when it's absent.
	TimeoutS *float64 `json:"timeout_s,omitempty"`
	Requests []Request `json:"requests"`
}

// Request describes a single downstream request.
type Request struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// BatchResponse is a body of the POST /proxy response.
type BatchResponse struct {
	Responses []Response `json:"responses"`
}

// Response is a per-request result. Body is encoded as base64 in JSON.
// Items rejected at admission carry the Backpressure fields, failed items carry Error.
type Response struct {
	ID         string `json:"id"`
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body,omitempty"`
	Error      string `json:"error,omitempty"`
	*Backpressure
}

// Backpressure is a snapshot of the queue returned for requests rejected at admission.
type Backpressure struct {
	QueueCapacity  int `json:"queue_capacity"`
	QueueFreeSpace int `json:"queue_free_space"`
}

// TTL returns the batch timeout. Absent timeout is replaced by defaultTimeout,
// and values above maxTimeout are clamped (maxTimeout <= 0 means no limit).
func (br *BatchRequest) TTL(defaultTimeout, maxTimeout time.Duration) time.Duration {
	ttl := defaultTimeout
	if br.TimeoutS != nil {
		secs := *br.TimeoutS
		if maxTimeout > 0 && secs >= maxTimeout.Seconds() {
			return maxTimeout
		}
		if secs >= math.MaxInt64/float64(time.Second) {
			return time.Duration(math.MaxInt64)
		}
		ttl = time.Duration(secs * float64(time.Second))
	}
	if maxTimeout > 0 && ttl > maxTimeout {
		ttl = maxTimeout
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl
}

// DecodeBatchRequest decodes the request body as BatchRequest and validates it.
// Any failure is returned as *restapi.MalformedRequestError.
func DecodeBatchRequest(r *http.Request) (*BatchRequest, error) {
	var batchReq BatchRequest
	if err := restapi.DecodeRequestJSON(r, &batchReq); err != nil {
		return nil, err
	}
	if err := batchReq.Validate(); err != nil {
		return nil, &restapi.MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: err.Error()}
	}
	return &batchReq, nil
}

// Validate checks the batch timeout and every request.
// Request ids must be unique since responses are matched to requests by id.
func (br *BatchRequest) Validate() error {
	if br.TimeoutS != nil && (math.IsNaN(*br.TimeoutS) || math.IsInf(*br.TimeoutS, 0) || *br.TimeoutS < 0) {
		return fmt.Errorf("timeout_s must be a non-negative number")
	}
	ids := make(map[string]struct{}, len(br.Requests))
	for i := range br.Requests {
		req := &br.Requests[i]
		if err := req.Validate(); err != nil {
			return fmt.Errorf("requests[%d]: %w", i, err)
		}
		if _, ok := ids[req.ID]; ok {
			return fmt.Errorf("requests[%d]: duplicate id %q", i, req.ID)
		}
		ids[req.ID] = struct{}{}
	}
	return nil
}

// Validate checks the request and normalizes its method to upper case.
func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	if strings.ContainsAny(r.Method, " \t\r\n") {
		return fmt.Errorf("method %q is invalid", r.Method)
	}
	r.Method = strings.ToUpper(r.Method)
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("url is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be an absolute http(s) URL", r.URL)
	}
	return nil
}
