package ofcontroller

import "testing"

func TestPhaseAfterMonotonicity(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseInit, PhasePrestart, true},
		{PhasePrestart, PhaseStart, true},
		{PhaseStart, PhaseStop, true},
		{PhaseStop, PhasePoststop, true},
		{PhaseStart, PhasePrestart, false},
		{PhasePoststop, PhaseInit, false},
		{PhaseInit, PhaseInit, false},
	}
	for _, c := range cases {
		if got := after(c.from, c.to); got != c.want {
			t.Errorf("after(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
