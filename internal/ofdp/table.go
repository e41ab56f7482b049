// Package ofdp implements the datapath table (a bidirectional index from
// connection id and datapath id to a Datapath record) and the user-facing
// Datapath handle.
package ofdp

import (
	"fmt"
	"sync"
)

// Table is the authoritative membership gate for event delivery: a
// Datapath is only dispatched to once it has been inserted here, and all
// further events for it stop the instant it is removed.
type Table struct {
	mu     sync.Mutex
	byConn map[uint64]*Datapath
	byDPID map[uint64]*Datapath
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	return &Table{
		byConn: make(map[uint64]*Datapath),
		byDPID: make(map[uint64]*Datapath),
	}
}

// Insert adds dp under both indexes. It is an error (precondition
// violation) for conn_id or dp_id to already be present.
func (t *Table) Insert(dp *Datapath) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byConn[dp.ConnID]; exists {
		return fmt.Errorf("ofdp: conn_id %d already present", dp.ConnID)
	}
	if existing, exists := t.byDPID[dp.DPID]; exists {
		return fmt.Errorf("ofdp: dp_id %d already present (conn_id %d)", dp.DPID, existing.ConnID)
	}
	t.byConn[dp.ConnID] = dp
	t.byDPID[dp.DPID] = dp
	return nil
}

// RemoveByConn removes the Datapath for connID from both indexes, returning
// it (or nil, false if not present). The byDPID entry is only cleared when
// it still points at this same Datapath, so a later Insert for the same
// dp_id under a different conn_id can never be clobbered by a stale remove.
func (t *Table) RemoveByConn(connID uint64) (*Datapath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dp, ok := t.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(t.byConn, connID)
	if t.byDPID[dp.DPID] == dp {
		delete(t.byDPID, dp.DPID)
	}
	return dp, true
}

// LookupConn returns the Datapath registered under connID, if any.
func (t *Table) LookupConn(connID uint64) (*Datapath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dp, ok := t.byConn[connID]
	return dp, ok
}

// LookupDPID returns the Datapath registered under dpID, if any.
func (t *Table) LookupDPID(dpID uint64) (*Datapath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dp, ok := t.byDPID[dpID]
	return dp, ok
}

// Counts returns (len(byConn), len(byDPID)); the two must always agree —
// exposed for the §8 invariant check in tests.
func (t *Table) Counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byConn), len(t.byDPID)
}
