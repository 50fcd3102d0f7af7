package signals

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandler_SIGHUPTriggersReloadNotShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reloaded := make(chan struct{}, 1)
	shutdown := make(chan struct{}, 1)
	h := New(func() { shutdown <- struct{}{} }, func() { reloaded <- struct{}{} }, slog.New(slog.DiscardHandler))

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("reload handler not called")
	}

	select {
	case <-shutdown:
		t.Fatal("shutdown handler should not be called on SIGHUP")
	default:
	}

	cancel()
	<-done
}

func TestHandler_SIGTERMTriggersShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	shutdown := make(chan struct{}, 1)
	h := New(func() { shutdown <- struct{}{} }, func() {}, slog.New(slog.DiscardHandler))

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown handler not called")
	}
	<-done
}
