package ofdp

import "testing"

func TestInsertRejectsDuplicateConnID(t *testing.T) {
	tbl := NewTable()
	dp1 := &Datapath{ConnID: 1, DPID: 100}
	dp2 := &Datapath{ConnID: 1, DPID: 200}

	if err := tbl.Insert(dp1); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Insert(dp2); err == nil {
		t.Fatalf("expected duplicate conn_id to be rejected")
	}
}

func TestCountsStayInSync(t *testing.T) {
	tbl := NewTable()
	for i := uint64(1); i <= 3; i++ {
		if err := tbl.Insert(&Datapath{ConnID: i, DPID: i * 10}); err != nil {
			t.Fatal(err)
		}
	}
	byConn, byDPID := tbl.Counts()
	if byConn != byDPID || byConn != 3 {
		t.Fatalf("counts diverged: %d vs %d", byConn, byDPID)
	}

	tbl.RemoveByConn(2)
	byConn, byDPID = tbl.Counts()
	if byConn != byDPID || byConn != 2 {
		t.Fatalf("counts diverged after remove: %d vs %d", byConn, byDPID)
	}
}

func TestInsertRejectsDuplicateDPID(t *testing.T) {
	tbl := NewTable()
	dp1 := &Datapath{ConnID: 1, DPID: 100}
	dp2 := &Datapath{ConnID: 2, DPID: 100}

	if err := tbl.Insert(dp1); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Insert(dp2); err == nil {
		t.Fatalf("expected duplicate dp_id to be rejected")
	}
	byConn, byDPID := tbl.Counts()
	if byConn != 1 || byDPID != 1 {
		t.Fatalf("rejected insert must not have touched either index: %d vs %d", byConn, byDPID)
	}
}

func TestRemoveByConnDoesNotClobberNewerDPIDEntry(t *testing.T) {
	tbl := NewTable()
	dp1 := &Datapath{ConnID: 1, DPID: 100}
	if err := tbl.Insert(dp1); err != nil {
		t.Fatal(err)
	}
	tbl.RemoveByConn(1)

	dp2 := &Datapath{ConnID: 2, DPID: 100}
	if err := tbl.Insert(dp2); err != nil {
		t.Fatal(err)
	}

	// A stale remove of the first connection must not delete dp2's entry
	// from byDPID, since byDPID[100] no longer points at dp1.
	tbl.RemoveByConn(1)
	if got, ok := tbl.LookupDPID(100); !ok || got != dp2 {
		t.Fatalf("LookupDPID(100) = (%v, %v), want dp2 still present", got, ok)
	}
}

func TestLookupByEitherKey(t *testing.T) {
	tbl := NewTable()
	dp := &Datapath{ConnID: 9, DPID: 900}
	if err := tbl.Insert(dp); err != nil {
		t.Fatal(err)
	}
	if got, ok := tbl.LookupConn(9); !ok || got != dp {
		t.Fatalf("LookupConn failed")
	}
	if got, ok := tbl.LookupDPID(900); !ok || got != dp {
		t.Fatalf("LookupDPID failed")
	}
}
