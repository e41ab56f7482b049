// Package ofrpc implements the RPC client surface: xid assignment, frame
// construction, and handing frames to the backend writer, returning
// awaitable reply handles from the reply tracker.
package ofrpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ofcore/ofcore/internal/ofevent"
	"github.com/ofcore/ofcore/internal/ofreply"
)

// FirstUserXid is where the user xid space begins; 0 and low values are
// reserved for framework use. Every xid a Client assigns, including those
// of the controller's own description and listen calls, starts here.
const FirstUserXid = 8092

// MethodSend is the backend RPC method used for fire-and-forget OF messages.
const MethodSend = "OFP.SEND"

// FrameWriter writes one outgoing frame to the backend. Implemented by
// ofbackend.Transport.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame map[string]any) error
}

// Client assigns xids and proxies requests to the backend, registering
// reply handles in the shared Tracker.
type Client struct {
	xid     atomic.Uint32
	writer  FrameWriter
	tracker *ofreply.Tracker
}

// NewClient constructs a Client whose user xids start at FirstUserXid.
func NewClient(writer FrameWriter, tracker *ofreply.Tracker) *Client {
	c := &Client{writer: writer, tracker: tracker}
	c.xid.Store(FirstUserXid)
	return c
}

// nextXid returns the next xid, wrapping from 2^32-1 back to FirstUserXid.
func (c *Client) nextXid() uint32 {
	for {
		cur := c.xid.Load()
		next := cur + 1
		if next == 0 { // wrapped past 2^32-1
			next = FirstUserXid
		}
		if c.xid.CompareAndSwap(cur, next) {
			return cur
		}
	}
}

// RPCCall assigns a new xid, registers it in the reply tracker with the
// default deadline, then writes {id, method, params} to the backend; if the
// write fails the registration is discarded.
func (c *Client) RPCCall(ctx context.Context, method string, params any) (*ofreply.Handle, error) {
	xid := c.nextXid()
	frame := ofevent.WithXid(xid, method, params)
	h, err := c.tracker.RegisterDefault(xid)
	if err != nil {
		return nil, err
	}
	if err := c.writer.WriteFrame(ctx, frame); err != nil {
		c.tracker.Discard(xid)
		return nil, err
	}
	return h, nil
}

// Send is fire-and-forget: event is wrapped as {method: OFP.SEND, params:
// event}, assigning an xid only if the event doesn't already carry one.
// No reply is awaited.
func (c *Client) Send(ctx context.Context, event ofevent.Event) error {
	frame := map[string]any{
		"method": MethodSend,
		"params": event,
	}
	if _, ok := event.Xid(); !ok {
		frame["id"] = c.nextXid()
	}
	return c.writer.WriteFrame(ctx, frame)
}

// Request is like Send but also registers a reply handle keyed by the
// assigned xid, so OF ERROR replies correlated to this xid are delivered
// as a terminal error on the returned handle.
func (c *Client) Request(ctx context.Context, event ofevent.Event) (*ofreply.Handle, error) {
	xid, hasXid := event.Xid()
	if !hasXid {
		xid = c.nextXid()
	}
	h, err := c.tracker.Register(xid, time.Now().Add(ofreply.DefaultDeadline))
	if err != nil {
		return nil, err
	}
	frame := map[string]any{
		"id":     xid,
		"method": MethodSend,
		"params": event,
	}
	if err := c.writer.WriteFrame(ctx, frame); err != nil {
		c.tracker.Discard(xid)
		return nil, err
	}
	return h, nil
}
