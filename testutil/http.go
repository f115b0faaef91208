/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

// RequireErrorInRecorder checks status and the {"error": {"domain": ..., "code": ...}} body of the response.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	helper(t)
	require.Equal(t, wantHTTPCode, resp.Code)
	var body struct {
		Error struct {
			Domain string `json:"domain"`
			Code   string `json:"code"`
		} `json:"error"`
	}
	decodeJSONBody(t, resp.Header(), resp.Body, &body)
	require.Equal(t, wantErrDomain, body.Error.Domain)
	require.Equal(t, wantErrCode, body.Error.Code)
}

// RequireEmptyBodyInRecorder checks that nothing was written into the response body.
func RequireEmptyBodyInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) {
	helper(t)
	require.Empty(t, readBody(t, resp.Body))
}

// RequireEmptyBodyInResponse checks that the response body is empty.
func RequireEmptyBodyInResponse(t require.TestingT, resp *http.Response) {
	helper(t)
	require.Empty(t, readBody(t, resp.Body))
}

// RequireJSONInRecorder decodes the JSON body into dest and compares it with want.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	helper(t)
	decodeJSONBody(t, resp.Header(), resp.Body, dest)
	require.Equal(t, want, dest)
}

// RequireJSONInResponse is RequireJSONInRecorder for a real client response.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	helper(t)
	decodeJSONBody(t, resp.Header, resp.Body, dest)
	require.Equal(t, want, dest)
}

func decodeJSONBody(t require.TestingT, header http.Header, body io.Reader, dest interface{}) {
	helper(t)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	require.NoError(t, json.Unmarshal(readBody(t, body), dest))
}

func readBody(t require.TestingT, body io.Reader) []byte {
	helper(t)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}
