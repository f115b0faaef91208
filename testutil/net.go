/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"net"
	"strconv"
	"time"
)

const pollInterval = 10 * time.Millisecond

// GetLocalFreeTCPPort returns a TCP port of 127.0.0.1 nobody listens on at the moment.
func GetLocalFreeTCPPort() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

// GetLocalAddrWithFreeTCPPort returns "127.0.0.1:<free port>".
func GetLocalAddrWithFreeTCPPort() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(GetLocalFreeTCPPort()))
}

// WaitListeningServer polls addr until a TCP connection succeeds or the timeout passes.
func WaitListeningServer(addr string, timeout time.Duration) error {
	return poll(timeout, "waiting listening server timed out", func() bool {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	})
}

// WaitPortAndListeningServer waits until getPort reports a port (servers on ":0" learn it after start)
// and then until the server accepts connections on it.
func WaitPortAndListeningServer(host string, getPort func() int, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	var port int
	if err := poll(timeout, "waiting for listening port timed out", func() bool {
		port = getPort()
		return port > 0
	}); err != nil {
		return 0, err
	}
	return port, WaitListeningServer(net.JoinHostPort(host, strconv.Itoa(port)), time.Until(deadline))
}

func poll(timeout time.Duration, timeoutMsg string, ready func() bool) error {
	deadline := time.Now().Add(timeout)
	for !ready() {
		if time.Now().After(deadline) {
			return errors.New(timeoutMsg)
		}
		time.Sleep(pollInterval)
	}
	return nil
}
