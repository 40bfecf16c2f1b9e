// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type fakeManager struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeManager) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Store(true)
	return nil
}

func (f *fakeManager) Stop() error {
	f.stopped.Store(true)
	return nil
}

func TestManagerServiceLifecycle(t *testing.T) {
	mgr := &fakeManager{}
	svc := NewManagerService("sweep-manager", mgr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give Serve a moment to start the manager, then shut down.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if !mgr.started.Load() || !mgr.stopped.Load() {
		t.Errorf("Lifecycle incomplete: started=%v stopped=%v", mgr.started.Load(), mgr.stopped.Load())
	}
}

func TestManagerServiceStartFailure(t *testing.T) {
	svc := NewManagerService("sweep-manager", &fakeManager{startErr: errors.New("platform unreachable")})
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Expected error from failed Start")
	}
}

type fakeHTTPServer struct {
	listenErr  error
	listenDone chan struct{}
	shutdowns  atomic.Int32
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.listenDone
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.listenDone)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := &fakeHTTPServer{listenDone: make(chan struct{})}
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", srv.shutdowns.Load())
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	srv := &fakeHTTPServer{listenErr: errors.New("address already in use")}
	svc := NewHTTPServerService(srv, time.Second)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Expected error when listen fails")
	}
}
