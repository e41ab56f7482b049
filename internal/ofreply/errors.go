package ofreply

import "errors"

// ErrInvalidState is returned by AwaitOne when a handle is done and its FIFO
// is empty: there is nothing left to await and nothing more will arrive.
var ErrInvalidState = errors.New("ofreply: invalid state: handle is done and empty")

// ErrTimeout is delivered as a terminal error by the sweeper when a handle's
// deadline passes before a reply arrives.
var ErrTimeout = errors.New("ofreply: request timed out")

// ErrDuplicateXid is returned by Register when the xid is already tracked.
var ErrDuplicateXid = errors.New("ofreply: xid already registered")

// ErrAlreadyAwaiting is returned by AwaitOne when another goroutine already
// holds the handle's single awaiter slot.
var ErrAlreadyAwaiting = errors.New("ofreply: handle already has a pending awaiter")
