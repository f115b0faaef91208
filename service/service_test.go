/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-batchproxy/log/logtest"
)

type mockUnit struct {
	name       string
	running    *atomic.Int32
	stop       chan struct{}
	startErr   error
	stopErr    bool
	stopCalled atomic.Int32
	graceful   atomic.Int32
}

func newMockUnit(name string, running *atomic.Int32) *mockUnit {
	return &mockUnit{name: name, running: running, stop: make(chan struct{}, 1)}
}

func (u *mockUnit) Start(fatalError chan<- error) {
	if u.startErr != nil {
		fatalError <- u.startErr
		return
	}
	u.running.Inc()
	<-u.stop
	u.running.Dec()
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopCalled.Inc()
	if gracefully {
		u.graceful.Inc()
	}
	select {
	case u.stop <- struct{}{}:
	default:
	}
	if u.stopErr {
		return fmt.Errorf("%s: internal error", u.name)
	}
	return nil
}

func TestService_Start(t *testing.T) {
	var running atomic.Int32
	unit := newMockUnit("srv", &running)
	svc := New(logtest.NewRecorder(), unit)
	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	require.Eventually(t, func() bool { return running.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	svc.Signals <- os.Interrupt

	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return running.Load() == 0 }, 3*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, unit.graceful.Load())
}

func TestService_StartContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var running atomic.Int32
	unit := newMockUnit("srv", &running)
	logRecorder := logtest.NewRecorder()
	svc := NewWithOpts(logRecorder, unit, Opts{})
	done := make(chan error, 1)
	go func() { done <- svc.StartContext(ctx) }()
	require.Eventually(t, func() bool { return running.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	cancel()

	require.NoError(t, <-done)
	require.EqualValues(t, 1, unit.graceful.Load())
	_, found := logRecorder.FindEntry("context is canceled, service will be stopped")
	require.True(t, found)
}

func TestService_FatalError(t *testing.T) {
	var running atomic.Int32
	unit := newMockUnit("srv", &running)
	unit.startErr = errors.New("listen: address already in use")
	err := NewWithOpts(logtest.NewRecorder(), unit, Opts{}).Start()
	require.ErrorContains(t, err, "address already in use")
}

func TestCompositeUnit(t *testing.T) {
	t.Run("start and stop all units", func(t *testing.T) {
		var running atomic.Int32
		units := []Unit{newMockUnit("a", &running), newMockUnit("b", &running), newMockUnit("c", &running)}
		cu := NewCompositeUnit(units...)
		fatalErr := make(chan error, 1)
		go cu.Start(fatalErr)
		require.Eventually(t, func() bool { return running.Load() == 3 }, 3*time.Second, 10*time.Millisecond)

		require.NoError(t, cu.Stop(true))
		require.Eventually(t, func() bool { return running.Load() == 0 }, 3*time.Second, 10*time.Millisecond)
		require.Len(t, fatalErr, 0)
	})

	t.Run("stop errors are collected", func(t *testing.T) {
		var running atomic.Int32
		a, b := newMockUnit("a", &running), newMockUnit("b", &running)
		b.stopErr = true
		cu := NewCompositeUnit(a, b)
		go cu.Start(make(chan error, 1))
		require.Eventually(t, func() bool { return running.Load() == 2 }, 3*time.Second, 10*time.Millisecond)

		err := cu.Stop(true)
		var cuErr *CompositeUnitError
		require.ErrorAs(t, err, &cuErr)
		require.Len(t, cuErr.UnitErrors, 1)
		require.EqualError(t, err, "b: internal error")
	})

	t.Run("failed unit stops the others", func(t *testing.T) {
		var running atomic.Int32
		ok, failing := newMockUnit("ok", &running), newMockUnit("failing", &running)
		failing.startErr = errors.New("bind failed")
		cu := NewCompositeUnit(ok, failing)
		fatalErr := make(chan error, 1)
		cu.Start(fatalErr)

		err := <-fatalErr
		require.ErrorContains(t, err, "bind failed")
		require.EqualValues(t, 1, ok.stopCalled.Load())
		require.EqualValues(t, 0, ok.graceful.Load())
	})
}
