// Package ofreply correlates outgoing request identifiers (xids) with
// awaitable reply handles: single replies, multi-reply streams, timeouts,
// and terminal errors all funnel through one Handle type.
package ofreply

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultDeadline is how long a registered handle may remain outstanding
// before the sweeper times it out.
const DefaultDeadline = 10 * time.Second

// sweepInterval is the sweeper's polling cadence.
const sweepInterval = 1 * time.Second

// Tracker is the table of outstanding xid -> Handle registrations. All
// methods are safe for concurrent use; the event loop, user tasks, and the
// sweeper goroutine all touch it concurrently.
type Tracker struct {
	logger *slog.Logger

	mu      sync.Mutex
	handles map[uint32]*Handle
}

// NewTracker constructs an empty Tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, handles: make(map[uint32]*Handle)}
}

// Register atomically inserts (xid, handle, deadline) into the table. It
// fails if xid is already present — the caller must have assigned a fresh
// xid (see ofrpc.Client).
func (t *Tracker) Register(xid uint32, deadline time.Time) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handles[xid]; exists {
		return nil, ErrDuplicateXid
	}
	h := newHandle(xid, deadline)
	t.handles[xid] = h
	return h, nil
}

// RegisterDefault registers xid with DefaultDeadline from now.
func (t *Tracker) RegisterDefault(xid uint32) (*Handle, error) {
	return t.Register(xid, time.Now().Add(DefaultDeadline))
}

func (t *Tracker) lookup(xid uint32) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[xid]
	return h, ok
}

func (t *Tracker) forget(xid uint32) {
	t.mu.Lock()
	delete(t.handles, xid)
	t.mu.Unlock()
}

// DeliverResult appends value to the handle's FIFO. If more is false the
// handle is marked done and removed from the table. Delivery for an unknown
// xid logs a warning and is otherwise a no-op (a late reply after timeout).
func (t *Tracker) DeliverResult(xid uint32, value any, more bool) {
	h, ok := t.lookup(xid)
	if !ok {
		t.logger.Warn("reply for unknown xid", slog.Uint64("xid", uint64(xid)))
		return
	}
	h.deliver(Result{Value: value}, more)
	if !more {
		t.forget(xid)
	}
}

// DeliverError appends err as a terminal result and removes the handle from
// the table. Errors are always terminal.
func (t *Tracker) DeliverError(xid uint32, err error) {
	h, ok := t.lookup(xid)
	if !ok {
		t.logger.Warn("error reply for unknown xid", slog.Uint64("xid", uint64(xid)), slog.Any("error", err))
		return
	}
	h.deliver(Result{Err: err}, false)
	t.forget(xid)
}

// Discard removes xid's handle without delivering a result, as happens when
// the request frame for xid could not be written to the backend.
// If the handle's FIFO still holds undelivered results, a warning is
// emitted (dropped replies).
func (t *Tracker) Discard(xid uint32) {
	h, ok := t.lookup(xid)
	if !ok {
		return
	}
	t.forget(xid)
	if n := h.pending(); n > 0 {
		t.logger.Warn("discarding handle with undelivered replies",
			slog.Uint64("xid", uint64(xid)), slog.Int("pending", n))
	}
}

// DiscardMany delivers ErrTimeout to each handle in xids still outstanding
// and removes it from the table; unknown xids are ignored. Used by
// force-close to purge the set of requests a closed datapath was still
// awaiting replies for.
func (t *Tracker) DiscardMany(xids []uint32) {
	for _, xid := range xids {
		h, ok := t.lookup(xid)
		if !ok {
			continue
		}
		t.forget(xid)
		h.deliver(Result{Err: ErrTimeout}, false)
	}
}

// RunSweeper blocks, timing out handles past their deadline every
// sweepInterval, until ctx is cancelled.
func (t *Tracker) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	var expired []uint32
	for xid, h := range t.handles {
		if !now.Before(h.deadline) {
			expired = append(expired, xid)
		}
	}
	t.mu.Unlock()

	for _, xid := range expired {
		t.DeliverError(xid, ErrTimeout)
	}
}

// Len reports the number of outstanding handles; exposed for tests and
// admin introspection.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
