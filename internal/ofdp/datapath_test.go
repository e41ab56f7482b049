package ofdp

import (
	"context"
	"testing"

	"github.com/ofcore/ofcore/internal/ofevent"
	"github.com/ofcore/ofcore/internal/ofreply"
	"github.com/ofcore/ofcore/internal/oftask"
)

type fakeSender struct {
	sent []ofevent.Event
}

func (f *fakeSender) Send(ctx context.Context, event ofevent.Event) error {
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeSender) Request(ctx context.Context, event ofevent.Event) (*ofreply.Handle, error) {
	f.sent = append(f.sent, event)
	return nil, nil
}

func TestSendInjectsDefaults(t *testing.T) {
	tasks := oftask.NewRegistry(context.Background(), nil, nil)
	defer tasks.Close()
	sender := &fakeSender{}
	dp := New(5, 0xdead, 4, nil, "dp:5", sender, tasks)

	if err := dp.Send(context.Background(), ofevent.Event{"type": "PACKET_OUT"}); err != nil {
		t.Fatal(err)
	}
	got := sender.sent[0]
	if got["conn_id"] != uint64(5) {
		t.Fatalf("conn_id not injected: %v", got)
	}
	if got["datapath_id"] != uint64(0xdead) {
		t.Fatalf("datapath_id not injected: %v", got)
	}
}

func TestForceCloseCancelsScopeAndMarksClosed(t *testing.T) {
	tasks := oftask.NewRegistry(context.Background(), nil, nil)
	defer tasks.Close()
	sender := &fakeSender{}
	dp := New(1, 1, 4, nil, "dp:1", sender, tasks)

	started := make(chan struct{})
	stopped := make(chan struct{})
	dp.CreateTask(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	<-started

	dp.Close(true)
	<-stopped

	if !dp.Closed() || !dp.ForceClosed() {
		t.Fatalf("expected Closed and ForceClosed to be true")
	}
}

func TestContextRoundTrip(t *testing.T) {
	dp := &Datapath{ConnID: 3}
	ctx := WithDatapath(context.Background(), dp)
	got, ok := FromContext(ctx)
	if !ok || got != dp {
		t.Fatalf("FromContext failed to round-trip")
	}
}
