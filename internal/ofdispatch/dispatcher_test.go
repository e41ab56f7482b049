package ofdispatch

import (
	"errors"
	"testing"

	"github.com/ofcore/ofcore/internal/ofdp"
	"github.com/ofcore/ofcore/internal/ofevent"
)

type recordingApp struct {
	calls []string
}

func (a *recordingApp) OnChannelUp(dp *ofdp.Datapath, ev ofevent.Event) error {
	a.calls = append(a.calls, "CHANNEL_UP")
	return nil
}

func (a *recordingApp) OnPacketIn(dp *ofdp.Datapath, ev ofevent.Event) error {
	a.calls = append(a.calls, "PACKET_IN")
	return ErrNotMine
}

type secondApp struct {
	calls []string
}

func (a *secondApp) OnPacketIn(dp *ofdp.Datapath, ev ofevent.Event) error {
	a.calls = append(a.calls, "PACKET_IN-2")
	return nil
}

func TestPascalEventName(t *testing.T) {
	cases := map[string]string{
		"PACKET_IN":    "OnPacketIn",
		"CHANNEL_UP":   "OnChannelUp",
		"PORT_STATUS":  "OnPortStatus",
		"START":        "OnStart",
	}
	for in, want := range cases {
		if got := pascalEventName(in); got != want {
			t.Errorf("pascalEventName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDispatchOrderAndFallThrough(t *testing.T) {
	a1 := &recordingApp{}
	a2 := &secondApp{}
	d := New(nil)
	if err := d.Register(a1); err != nil {
		t.Fatal(err)
	}
	if err := d.Register(a2); err != nil {
		t.Fatal(err)
	}

	if err := d.Dispatch(nil, "PACKET_IN", ofevent.Event{}); err != nil {
		t.Fatal(err)
	}
	if len(a1.calls) != 1 || len(a2.calls) != 1 {
		t.Fatalf("expected both apps to see the fall-through event: %v %v", a1.calls, a2.calls)
	}
}

func TestLookupIsCached(t *testing.T) {
	d := New(nil)
	if err := d.Register(&recordingApp{}); err != nil {
		t.Fatal(err)
	}
	h1 := d.Lookup("CHANNEL_UP")
	h2 := d.Lookup("CHANNEL_UP")
	if len(h1) != 1 || len(h2) != 1 {
		t.Fatalf("expected one handler cached")
	}
}

func TestDefaultChannelAlertHandlerWhenNoneRegistered(t *testing.T) {
	d := New(nil)
	if err := d.Register(&recordingApp{}); err != nil {
		t.Fatal(err)
	}
	handlers := d.Lookup("CHANNEL_ALERT")
	if len(handlers) != 1 {
		t.Fatalf("expected a default OnChannelAlert handler, got %d", len(handlers))
	}
}

func TestOnExceptionSinkDiscovery(t *testing.T) {
	app := &exceptionApp{}
	d := New(nil)
	if err := d.Register(app); err != nil {
		t.Fatal(err)
	}
	sinks := d.OnExceptionHandlers()
	if len(sinks) != 1 {
		t.Fatalf("expected one OnException sink")
	}
	sinks[0](errors.New("boom"))
	if app.lastErr == nil {
		t.Fatalf("expected sink to be invoked")
	}
}

type exceptionApp struct {
	lastErr error
}

func (a *exceptionApp) OnException(err error) { a.lastErr = err }
