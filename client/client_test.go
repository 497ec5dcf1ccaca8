package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/internal/queue"
)

type fakePusher struct {
	pushed []event.IndexerEvent
	pushCh chan event.IndexerEvent
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushCh: make(chan event.IndexerEvent, 8)}
}

func (f *fakePusher) Push(evt event.IndexerEvent) {
	f.pushed = append(f.pushed, evt)
	if f.pushCh != nil {
		f.pushCh <- evt
	}
}

func TestPushEventForwardsToPusher(t *testing.T) {
	pusher := &fakePusher{}
	c := New(pusher, queue.New())

	c.ReportHeight(42)
	c.ReportReorg([]event.TransactionId{{1}, {2}})

	require.Len(t, pusher.pushed, 2)
	require.Equal(t, event.EventReportHeight, pusher.pushed[0].Kind)
	require.Equal(t, uint32(42), pusher.pushed[0].Height)
	require.Equal(t, event.EventReportReorg, pusher.pushed[1].Kind)
}

func TestTryRecvNonBlocking(t *testing.T) {
	events := queue.New()
	c := New(&fakePusher{}, events)

	_, ok := c.TryRecv()
	require.False(t, ok)

	events.Send(event.TransactionEvent(event.Transaction{Id: event.TransactionId{1}}))

	require.Eventually(t, func() bool {
		evt, ok := c.TryRecv()
		return ok && evt.Kind == event.ClientEventTransaction
	}, time.Second, time.Millisecond)
}

func TestGetBalanceRoundTrip(t *testing.T) {
	pusher := newFakePusher()
	c := New(pusher, queue.New())

	go func() {
		// Simulate the processor answering the GetBalance reply channel.
		evt := <-pusher.pushCh
		evt.Reply <- event.BalanceResult{Amount: event.NewBalanceAmount(7)}
		close(evt.Reply)
	}()

	amt, err := c.GetBalance(event.Address("a"), event.Token("t"))
	require.NoError(t, err)
	require.Equal(t, "7", amt.String())
}
