package ofreply

import (
	"context"
	"iter"
	"sync"
	"time"
)

// Result is one FIFO entry delivered to a Handle: either a value or a
// terminal error, never both.
type Result struct {
	Value any
	Err   error
}

// Handle is owned by the requester of an RPC or OF request carrying an xid.
// It holds a FIFO of pending results, a single pending-awaiter slot, a done
// flag, and a deadline. At most one awaiter is live at a time; once done, no
// further results may be appended.
type Handle struct {
	xid      uint32
	deadline time.Time

	mu       sync.Mutex
	queue    []Result
	done     bool
	awaiting bool
	wake     chan struct{}
}

func newHandle(xid uint32, deadline time.Time) *Handle {
	return &Handle{xid: xid, deadline: deadline}
}

// Xid returns the transaction id this handle is registered under.
func (h *Handle) Xid() uint32 { return h.xid }

// Deadline returns the time after which the sweeper will time out this
// handle if it is still outstanding.
func (h *Handle) Deadline() time.Time { return h.deadline }

func (h *Handle) deliver(r Result, more bool) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, r)
	if !more {
		h.done = true
	}
	if h.wake != nil {
		close(h.wake)
		h.wake = nil
	}
	h.mu.Unlock()
}

// AwaitOne returns the next FIFO entry. If the FIFO is empty and the handle
// is not done, the caller is parked as the sole awaiter until a result
// arrives or ctx is cancelled. On done-with-empty-FIFO it returns
// ErrInvalidState. Only one goroutine may await a given handle at a time.
func (h *Handle) AwaitOne(ctx context.Context) (any, error) {
	h.mu.Lock()
	for {
		if len(h.queue) > 0 {
			r := h.queue[0]
			h.queue = h.queue[1:]
			h.mu.Unlock()
			return r.Value, r.Err
		}
		if h.done {
			h.mu.Unlock()
			return nil, ErrInvalidState
		}
		if h.awaiting {
			h.mu.Unlock()
			return nil, ErrAlreadyAwaiting
		}
		wake := make(chan struct{})
		h.wake = wake
		h.awaiting = true
		h.mu.Unlock()

		select {
		case <-wake:
			h.mu.Lock()
			h.awaiting = false
		case <-ctx.Done():
			h.mu.Lock()
			h.awaiting = false
			// wake may have been closed concurrently with ctx's cancellation
			// (select chooses pseudo-randomly between simultaneously ready
			// cases); re-check here rather than trusting which case fired,
			// so a result delivered in that window is never stranded.
			if h.wake == wake {
				h.wake = nil
			} else if len(h.queue) > 0 {
				r := h.queue[0]
				h.queue = h.queue[1:]
				h.mu.Unlock()
				return r.Value, r.Err
			}
			h.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// Iterate yields successive values until the handle reaches done-with-empty
// FIFO. It stops (without error) at that point rather than surfacing
// ErrInvalidState, since reaching the end of the sequence is the normal
// termination condition for iteration.
func (h *Handle) Iterate(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for {
			v, err := h.AwaitOne(ctx)
			if err == ErrInvalidState {
				return
			}
			if !yield(v, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Done reports whether the handle has reached a terminal state.
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// pending reports how many undelivered results the FIFO still holds; used
// by Discard to warn about dropped replies.
func (h *Handle) pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}
