package oftask

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSpawnAndCancelScope(t *testing.T) {
	r := NewRegistry(context.Background(), nil, nil)
	defer r.Close()

	started := make(chan struct{})
	var cancelled atomic.Bool
	h := r.Spawn(context.Background(), "dp:1", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})

	<-started
	r.Cancel("dp:1")
	if err := h.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cancelled.Load() {
		t.Fatalf("task should have observed cancellation")
	}
	if r.Count("dp:1") != 0 {
		t.Fatalf("entry should be removed after task exits")
	}
}

func TestCancelDoesNotAffectOtherScopes(t *testing.T) {
	r := NewRegistry(context.Background(), nil, nil)
	defer r.Close()

	block := make(chan struct{})
	r.Spawn(context.Background(), "dp:1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r.Spawn(context.Background(), "dp:2", func(ctx context.Context) error {
		<-block
		return nil
	})

	r.Cancel("dp:1")
	time.Sleep(10 * time.Millisecond)
	if r.Count("dp:2") != 1 {
		t.Fatalf("dp:2 task should still be running")
	}
	close(block)
}

func TestExceptionRoutedToSink(t *testing.T) {
	var gotScope string
	var gotErr any
	done := make(chan struct{})
	r := NewRegistry(context.Background(), nil, func(scope string, err any) {
		gotScope, gotErr = scope, err
		close(done)
	})
	defer r.Close()

	r.Spawn(context.Background(), "PRESTART", func(ctx context.Context) error {
		return errors.New("boom")
	})

	<-done
	if gotScope != "PRESTART" {
		t.Fatalf("scope = %q", gotScope)
	}
	if gotErr == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestCancelAllWaitReturnsAfterAllTasksFinish(t *testing.T) {
	r := NewRegistry(context.Background(), nil, nil)
	defer r.Close()

	for i := 0; i < 3; i++ {
		r.Spawn(context.Background(), "dp:1", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	r.CancelAllWait(context.Background(), time.Second)
	if r.Count("") != 0 {
		t.Fatalf("expected all tasks to have finished")
	}
}
