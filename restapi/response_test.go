/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-batchproxy/log/logtest"
)

func TestRespondCodeAndJSON(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RespondJSON(rec, map[string]string{"url": "http://a/?x=<y>"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, ContentTypeAppJSON, rec.Header().Get("Content-Type"))
		require.Equal(t, `{"url":"http://a/?x=<y>"}`, rec.Body.String())
	})

	t.Run("nil body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RespondCodeAndJSON(rec, http.StatusBadRequest, nil, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, rec.Body.String())
	})

	t.Run("marshal failure", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rec := httptest.NewRecorder()
		RespondJSON(rec, map[string]interface{}{"ch": make(chan int)}, logRecorder)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		_, found := logRecorder.FindEntry("error while marshaling json for response body")
		require.True(t, found)
	})
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest,
		NewError("BatchProxy", ErrCodeInvalidRequest, "bad capacity").AddContext("queue", -1), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t,
		`{"error":{"domain":"BatchProxy","code":"invalidRequest","message":"bad capacity","context":{"queue":-1}}}`,
		rec.Body.String())
}

func TestError_Error(t *testing.T) {
	err := NewInternalError("BatchProxy")
	require.Equal(t, "BatchProxy.internalError: Internal error.", err.Error())
	require.Nil(t, err.Context)
}
