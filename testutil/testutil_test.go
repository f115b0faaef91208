/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockT struct {
	Failed bool
}

func (t *mockT) FailNow() {
	t.Failed = true
}

func (t *mockT) Errorf(format string, args ...interface{}) {
	t.Failed = true
}

func TestRequireNoErrorInChannel(t *testing.T) {
	ch := make(chan error, 1)

	mt := &mockT{}
	RequireNoErrorInChannel(mt, ch)
	require.False(t, mt.Failed)

	ch <- errors.New("some error")
	RequireNoErrorInChannel(mt, ch)
	require.True(t, mt.Failed)
}

func TestRequireErrorInRecorder(t *testing.T) {
	makeResp := func(code int, body string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		resp.Header().Set("Content-Type", contentTypeAppJSON)
		resp.WriteHeader(code)
		_, _ = resp.WriteString(body)
		return resp
	}

	mt := &mockT{}
	RequireErrorInRecorder(mt, makeResp(http.StatusBadRequest, `{"error":{"domain":"BatchProxy","code":"invalidRequest"}}`),
		http.StatusBadRequest, "BatchProxy", "invalidRequest")
	require.False(t, mt.Failed)

	mt = &mockT{}
	RequireErrorInRecorder(mt, makeResp(http.StatusBadRequest, `{"error":{"domain":"BatchProxy","code":"internalError"}}`),
		http.StatusBadRequest, "BatchProxy", "invalidRequest")
	require.True(t, mt.Failed)
}

func TestWaitListeningServer(t *testing.T) {
	require.Error(t, WaitListeningServer(GetLocalAddrWithFreeTCPPort(), time.Millisecond*50))

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	require.NoError(t, WaitListeningServer(srv.Listener.Addr().String(), time.Second))
}

func TestWaitPortAndListeningServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	calls := 0
	port, err := WaitPortAndListeningServer("127.0.0.1", func() int {
		calls++
		if calls < 3 {
			return 0
		}
		return srv.Listener.Addr().(*net.TCPAddr).Port
	}, time.Second)
	require.NoError(t, err)
	require.Equal(t, srv.Listener.Addr().(*net.TCPAddr).Port, port)

	_, err = WaitPortAndListeningServer("127.0.0.1", func() int { return 0 }, 30*time.Millisecond)
	require.Error(t, err)
}
