package ofreply

import (
	"context"
	"testing"
	"time"
)

func TestRegisterRejectsDuplicateXid(t *testing.T) {
	tr := NewTracker(nil)
	if _, err := tr.RegisterDefault(1); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RegisterDefault(1); err != ErrDuplicateXid {
		t.Fatalf("expected ErrDuplicateXid, got %v", err)
	}
}

func TestSingleReplyRoundTrip(t *testing.T) {
	tr := NewTracker(nil)
	h, err := tr.RegisterDefault(7)
	if err != nil {
		t.Fatal(err)
	}
	tr.DeliverResult(7, "hello", false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.AwaitOne(ctx)
	if err != nil {
		t.Fatalf("AwaitOne: %v", err)
	}
	if v != "hello" {
		t.Fatalf("got %v", v)
	}
	if _, err := h.AwaitOne(ctx); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState after terminal delivery, got %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("handle should be removed from table after terminal delivery")
	}
}

func TestMultiReplyIteration(t *testing.T) {
	tr := NewTracker(nil)
	h, err := tr.RegisterDefault(9)
	if err != nil {
		t.Fatal(err)
	}
	tr.DeliverResult(9, 1, true)
	tr.DeliverResult(9, 2, true)
	tr.DeliverResult(9, 3, false)

	ctx := context.Background()
	var got []any
	for v, err := range h.Iterate(ctx) {
		if err != nil {
			t.Fatalf("unexpected error mid-stream: %v", err)
		}
		got = append(got, v)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v", got)
	}
	if _, err := h.AwaitOne(ctx); err != ErrInvalidState {
		t.Fatalf("fourth await should fail invalid_state, got %v", err)
	}
}

func TestDeliverErrorIsTerminal(t *testing.T) {
	tr := NewTracker(nil)
	h, _ := tr.RegisterDefault(3)
	tr.DeliverError(3, ErrTimeout)

	_, err := h.AwaitOne(context.Background())
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSweeperTimesOutExpiredHandles(t *testing.T) {
	tr := NewTracker(nil)
	h, err := tr.Register(11, time.Now().Add(-time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	tr.sweep(time.Now())
	_, err = h.AwaitOne(context.Background())
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDeliverOnUnknownXidIsNoOp(t *testing.T) {
	tr := NewTracker(nil)
	tr.DeliverResult(42, "x", false)
	tr.DeliverError(42, ErrTimeout)
}

func TestDiscardManyDeliversTimeoutAndIgnoresUnknown(t *testing.T) {
	tr := NewTracker(nil)
	h1, _ := tr.RegisterDefault(21)
	h2, _ := tr.RegisterDefault(22)

	tr.DiscardMany([]uint32{21, 22, 999})

	if tr.Len() != 0 {
		t.Fatalf("tracker.Len() = %d, want 0", tr.Len())
	}
	for _, h := range []*Handle{h1, h2} {
		if _, err := h.AwaitOne(context.Background()); err != ErrTimeout {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	}
}
