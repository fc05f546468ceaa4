package httpapi

import (
	"context"
	"testing"
	"time"
)

func waitDone(t *testing.T, ctx context.Context, what string) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("%s did not cancel the request context", what)
	}
}

func TestUntilShutdown_CanceledByShutdown(t *testing.T) {
	daemon, stop := context.WithCancel(context.Background())
	SetBaseContext(daemon)
	defer SetBaseContext(nil)

	ctx, cancel := untilShutdown(context.Background())
	defer cancel()
	if ctx.Err() != nil {
		t.Fatalf("context canceled early: %v", ctx.Err())
	}
	stop()
	waitDone(t, ctx, "shutdown")
}

func TestUntilShutdown_CanceledByRequest(t *testing.T) {
	SetBaseContext(nil)
	req, reqCancel := context.WithCancel(context.Background())
	ctx, cancel := untilShutdown(req)
	defer cancel()
	reqCancel()
	waitDone(t, ctx, "request cancel")
}

func TestUntilShutdown_CancelReleasesShutdownHook(t *testing.T) {
	daemon, stop := context.WithCancel(context.Background())
	defer stop()
	SetBaseContext(daemon)
	defer SetBaseContext(nil)

	ctx, cancel := untilShutdown(context.Background())
	cancel()
	waitDone(t, ctx, "handler cancel")
	// The daemon context itself is untouched.
	if daemon.Err() != nil {
		t.Fatalf("daemon context canceled")
	}
}

func TestSetBaseContext_NilResets(t *testing.T) {
	done, stop := context.WithCancel(context.Background())
	stop()
	SetBaseContext(done)
	// nolint:staticcheck // SA1012: nil falls back to Background
	SetBaseContext(nil)
	ctx, cancel := untilShutdown(context.Background())
	defer cancel()
	if ctx.Err() != nil {
		t.Fatalf("reset base context still canceled requests")
	}
}
