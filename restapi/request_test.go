/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		maxSize     uint64
		wantCode    int
	}{
		{name: "ok", body: `{"name":"a","count":1}`},
		{name: "empty body", body: ``, wantCode: http.StatusBadRequest},
		{name: "bad json", body: `{"name":`, wantCode: http.StatusBadRequest},
		{name: "syntax error", body: `{"name" 1}`, wantCode: http.StatusBadRequest},
		{name: "wrong type", body: `{"count":"x"}`, wantCode: http.StatusBadRequest},
		{name: "two objects", body: `{} {}`, wantCode: http.StatusBadRequest},
		{name: "unsupported content type", body: `{}`, contentType: "text/plain", wantCode: http.StatusUnsupportedMediaType},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", 100) + `"}`, maxSize: 32,
			wantCode: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.maxSize != 0 {
				SetRequestMaxBodySize(httptest.NewRecorder(), req, tt.maxSize)
			}
			var dst payload
			err := DecodeRequestJSON(req, &dst)
			if tt.wantCode == 0 {
				require.NoError(t, err)
				require.Equal(t, payload{Name: "a", Count: 1}, dst)
				return
			}
			var malformedErr *MalformedRequestError
			require.ErrorAs(t, err, &malformedErr)
			require.Equal(t, tt.wantCode, malformedErr.HTTPStatusCode)
		})
	}
}
