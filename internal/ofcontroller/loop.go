package ofcontroller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/ofcore/ofcore/internal/ofdp"
	"github.com/ofcore/ofcore/internal/ofevent"
	"github.com/ofcore/ofcore/internal/ofevents"
)

// runEventLoop is the single dispatch-loop goroutine: dequeue one event,
// perform membership bookkeeping, dispatch to handlers, then yield once so
// pending task goroutines get a chance to run before the next event is
// pulled. It exits only on context cancellation. enterStop cancels the run
// context only after posting STOP, so a queued-but-undelivered STOP (or any
// other already-posted event) is always drained before a cancelled context
// is allowed to end the loop — otherwise select's random case choice could
// drop STOP on the way out.
func (c *Controller) runEventLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.queue:
			c.handleEvent(ctx, ev)
			runtime.Gosched()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.queue:
			c.handleEvent(ctx, ev)
			runtime.Gosched()
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, ev ofevent.Event) {
	// Synthetic events are the controller's own lifecycle signals (STOP in
	// particular is posted by enterStop, which has moved on to POSTSTOP by
	// the time the loop dequeues it, so it must still be delivered even
	// though the phase has already advanced past STOP by then). Only backend-sourced traffic is
	// dropped once POSTSTOP is reached.
	if name, ok := ev.EventOf(); ok {
		c.handleSynthetic(ctx, name, ev)
		return
	}

	if c.Phase() == PhasePoststop {
		return
	}

	if ev.IsReply() {
		c.handleReply(ev)
		return
	}

	typ, ok := ev.TypeOf()
	if !ok {
		c.logger.Warn("event with no discriminator, dropping", slog.Any("event", map[string]any(ev)))
		return
	}

	dp, deliver := c.bookkeep(typ, ev)
	if !deliver {
		return
	}

	if err := c.dispatcher.Dispatch(dp, typ, ev); err != nil {
		c.routeException(fmt.Errorf("handler for %s: %w", typ, err))
	}
}

// bookkeep applies the membership rules from SPEC_FULL.md §4.1 and reports
// whether the event should still be dispatched.
func (c *Controller) bookkeep(typ string, ev ofevent.Event) (*ofdp.Datapath, bool) {
	switch typ {
	case ofevent.ChannelUp:
		return c.bookkeepChannelUp(ev)
	case ofevent.ChannelDown:
		return c.bookkeepChannelDown(ev)
	default:
		connID, hasConn := ev.ConnID()
		if !hasConn {
			return nil, true
		}
		dp, ok := c.table.LookupConn(connID)
		if !ok {
			c.logger.Warn("event for unknown conn_id", slog.Uint64("conn_id", connID), slog.String("type", typ))
			return nil, true
		}
		if dp.Closed() {
			return nil, false
		}
		if typ == "PACKET_IN" {
			normalizePacketIn(ev)
		}
		if typ == "PORT_STATUS" {
			updatePortTable(dp, ev)
		}
		return dp, true
	}
}

func (c *Controller) bookkeepChannelUp(ev ofevent.Event) (*ofdp.Datapath, bool) {
	connID, _ := ev.ConnID()
	dpidStr, _ := ev["datapath_id"].(string)
	dpID := parseDatapathID(dpidStr)

	scope := fmt.Sprintf("dp:%d", connID)
	ofVersion := uint8(0)
	if v, ok := ev["ofp_version"].(float64); ok {
		ofVersion = uint8(v)
	}
	features, _ := ev["features"].(map[string]any)

	dp := ofdp.New(connID, dpID, ofVersion, features, scope, c.rpc, c.tasks)
	dp.SetOnForceClose(func(pendingXids []uint32) {
		c.tracker.DiscardMany(pendingXids)
	})
	if err := c.table.Insert(dp); err != nil {
		c.logger.Error("CHANNEL_UP precondition violated", slog.String("error", err.Error()))
		return nil, false
	}

	c.bus.Publish(ofevents.Event{
		Source: ofevents.SourceController,
		Kind:   ofevents.KindDatapathConnected,
		Data:   map[string]any{"conn_id": connID, "dp_id": dpID},
	})
	return dp, true
}

func (c *Controller) bookkeepChannelDown(ev ofevent.Event) (*ofdp.Datapath, bool) {
	connID, _ := ev.ConnID()
	dp, ok := c.table.RemoveByConn(connID)
	if !ok {
		c.logger.Warn("CHANNEL_DOWN for unknown conn_id", slog.Uint64("conn_id", connID))
		return nil, false
	}
	if dp.ForceClosed() {
		// The datapath was force-closed earlier, so the backend's real
		// CHANNEL_DOWN is not dispatched. Close(force=true) itself posts no
		// channel-down event, so handlers see no CHANNEL_DOWN at all for a
		// force-closed datapath.
		return nil, false
	}
	dp.Close(true)

	c.bus.Publish(ofevents.Event{
		Source: ofevents.SourceController,
		Kind:   ofevents.KindDatapathClosed,
		Data:   map[string]any{"conn_id": connID, "dp_id": dp.DPID},
	})
	return dp, true
}

func (c *Controller) handleReply(ev ofevent.Event) {
	xid, ok := ev.Xid()
	if !ok {
		c.logger.Warn("reply event without id, dropping")
		return
	}
	if errVal, ok := ev.Error(); ok {
		c.tracker.DeliverError(xid, fmt.Errorf("ofcontroller: rpc error: %v", errVal))
		return
	}
	result, _ := ev.Result()
	c.tracker.DeliverResult(xid, result, ev.More())
}

func (c *Controller) handleSynthetic(ctx context.Context, name string, ev ofevent.Event) {
	switch name {
	case ofevent.Start, ofevent.Stop:
		if err := c.dispatcher.Dispatch(nil, name, ev); err != nil {
			c.routeException(fmt.Errorf("handler for %s: %w", name, err))
		}
	case ofevent.StartFail:
		c.logger.Error("start sequence failed, exiting")
	case ofevent.Exit:
		c.enterStop(ctx)
	}
}

// normalizePacketIn runs the packet-normalization hook on a PACKET_IN
// payload before dispatch. The core does not interpret OF semantics beyond
// this bookkeeping touchpoint (see SPEC_FULL.md §1 Non-goals); a real
// deployment wires a match-field/packet-parsing library in here.
func normalizePacketIn(ev ofevent.Event) {}

// updatePortTable runs the port-table update hook for PORT_STATUS messages
// against a known datapath.
func updatePortTable(dp *ofdp.Datapath, ev ofevent.Event) {}

// parseDatapathID parses a colon-hex datapath id string (e.g.
// "00:00:00:00:00:00:00:01") into its 64-bit integer form.
func parseDatapathID(s string) uint64 {
	var id uint64
	var group uint64
	n := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ':' {
			id = (id << 8) | group
			group = 0
			n++
			continue
		}
		c := s[i]
		var nibble uint64
		switch {
		case c >= '0' && c <= '9':
			nibble = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			nibble = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			nibble = uint64(c-'A') + 10
		default:
			continue
		}
		group = (group << 4) | nibble
	}
	return id
}
