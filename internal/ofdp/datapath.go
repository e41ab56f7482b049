package ofdp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ofcore/ofcore/internal/ofevent"
	"github.com/ofcore/ofcore/internal/ofreply"
	"github.com/ofcore/ofcore/internal/oftask"
)

// ErrConfiguration is returned by ResolveSendTarget when the context
// carries no Datapath.
var ErrConfiguration = errors.New("ofdp: no datapath or conn_id resolvable for send/request")

// Sender is the RPC client surface a Datapath proxies to. Implemented by
// ofrpc.Client; declared here to avoid an import cycle between ofdp and
// ofrpc (ofrpc depends on nothing in ofdp).
type Sender interface {
	Send(ctx context.Context, event ofevent.Event) error
	Request(ctx context.Context, event ofevent.Event) (*ofreply.Handle, error)
}

// Datapath is the user-visible handle for a connected OF switch, identified
// by (conn_id, dp_id). It proxies Send/Request/CreateTask to the
// controller's RPC client and task registry, and exposes a Closed flag that
// gates further dispatch once true.
type Datapath struct {
	ConnID    uint64
	DPID      uint64
	OFVersion uint8
	Features  map[string]any

	scope  string
	sender Sender
	tasks  *oftask.Registry
	closed atomic.Bool
	forced atomic.Bool

	// onForceClose, if set, is invoked by Close(force=true) after the
	// datapath's tasks have been cancelled; the controller wires this to
	// purge reply handles the closed connection is still awaiting.
	onForceClose func(pendingXids []uint32)

	xidsMu sync.Mutex
	xids   []uint32
}

// SetOnForceClose wires the callback Close(force=true) invokes with the
// set of xids this datapath has outstanding requests for.
func (dp *Datapath) SetOnForceClose(fn func(pendingXids []uint32)) {
	dp.onForceClose = fn
}

func (dp *Datapath) trackXid(xid uint32) {
	dp.xidsMu.Lock()
	dp.xids = append(dp.xids, xid)
	dp.xidsMu.Unlock()
}

// PendingXids returns the xids of requests issued through this datapath.
// Close(force=true) hands this set to onForceClose so the caller can purge
// the corresponding reply handles.
func (dp *Datapath) PendingXids() []uint32 {
	dp.xidsMu.Lock()
	defer dp.xidsMu.Unlock()
	out := make([]uint32, len(dp.xids))
	copy(out, dp.xids)
	return out
}

// New constructs a Datapath bound to the given RPC sender and task
// registry. scope is the per-datapath task scope key used for CreateTask
// and Close(force=true).
func New(connID, dpID uint64, ofVersion uint8, features map[string]any, scope string, sender Sender, tasks *oftask.Registry) *Datapath {
	return &Datapath{
		ConnID:    connID,
		DPID:      dpID,
		OFVersion: ofVersion,
		Features:  features,
		scope:     scope,
		sender:    sender,
		tasks:     tasks,
	}
}

// Scope returns the task scope key tasks spawned via CreateTask run under.
func (dp *Datapath) Scope() string { return dp.scope }

// Closed reports whether the datapath has been removed from dispatch,
// whether by a real CHANNEL_DOWN or by a forced Close.
func (dp *Datapath) Closed() bool { return dp.closed.Load() }

// ForceClosed reports whether Close(force=true) was called, meaning the
// backend's subsequent real CHANNEL_DOWN for this connection must be
// suppressed from dispatch.
func (dp *Datapath) ForceClosed() bool { return dp.forced.Load() }

func (dp *Datapath) markClosed() { dp.closed.Store(true) }

// withDefaults fills in datapath_id/conn_id on msg if absent, from this
// Datapath's identity.
func (dp *Datapath) withDefaults(msg ofevent.Event) ofevent.Event {
	out := make(ofevent.Event, len(msg)+2)
	for k, v := range msg {
		out[k] = v
	}
	if _, ok := out["conn_id"]; !ok {
		out["conn_id"] = dp.ConnID
	}
	if _, ok := out["datapath_id"]; !ok && dp.DPID != 0 {
		out["datapath_id"] = dp.DPID
	}
	return out
}

// Send is fire-and-forget: it injects datapath_id/conn_id if absent and
// hands the message to the RPC client surface.
func (dp *Datapath) Send(ctx context.Context, msg ofevent.Event) error {
	return dp.sender.Send(ctx, dp.withDefaults(msg))
}

// Request is like Send but registers a reply handle keyed by the assigned xid.
func (dp *Datapath) Request(ctx context.Context, msg ofevent.Event) (*ofreply.Handle, error) {
	h, err := dp.sender.Request(ctx, dp.withDefaults(msg))
	if err == nil && h != nil {
		dp.trackXid(h.Xid())
	}
	return h, err
}

// CreateTask spawns fn under this datapath's scope key, so it is cancelled
// in bulk when the datapath is closed (real or forced).
func (dp *Datapath) CreateTask(ctx context.Context, fn oftask.Func) *oftask.Handle {
	return dp.tasks.Spawn(WithDatapath(ctx, dp), dp.scope, fn)
}

// Close tears the datapath down. With force=true it marks the datapath
// closed and cancels its tasks immediately; the backend's subsequent real
// CHANNEL_DOWN for this connection is then suppressed by the event loop
// (see ForceClosed). Close(false) has no effect.
func (dp *Datapath) Close(force bool) {
	if force {
		dp.forced.Store(true)
		dp.markClosed()
		dp.tasks.Cancel(dp.scope)
		if dp.onForceClose != nil {
			dp.onForceClose(dp.PendingXids())
		}
	}
}

type dpContextKey struct{}

// WithDatapath returns a copy of ctx carrying dp, so that Send/Request
// invoked from a user task can infer conn_id/datapath_id without arguments.
func WithDatapath(ctx context.Context, dp *Datapath) context.Context {
	return context.WithValue(ctx, dpContextKey{}, dp)
}

// FromContext retrieves the Datapath stashed by WithDatapath, if any.
func FromContext(ctx context.Context) (*Datapath, bool) {
	dp, ok := ctx.Value(dpContextKey{}).(*Datapath)
	return dp, ok
}

// ResolveSendTarget finds the Datapath a bare Send/Request call (outside of
// a Datapath method, i.e. called directly on the controller) should bind
// to, using task-local context. Returns ErrConfiguration if ctx carries no
// Datapath (set by WithDatapath).
func ResolveSendTarget(ctx context.Context) (*Datapath, error) {
	dp, ok := FromContext(ctx)
	if !ok {
		return nil, ErrConfiguration
	}
	return dp, nil
}
