// Package client is the bidirectional bridge an embedding application
// uses to drive the SDK and receive its events: a pair of unbounded
// channels (commands towards the processor, ClientEvents from it) plus
// blocking and non-blocking helpers so a synchronous embedder never
// needs an async runtime of its own.
package client

import (
	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/internal/queue"
)

// Pusher is the single method the processor exposes that the client
// needs, narrowed to an interface so tests can supply a fake.
type Pusher interface {
	Push(evt event.IndexerEvent)
}

// Client is the embedder-facing notifier. PushEvent and its typed
// helpers never block on the processor (the inbound queue is
// unbounded); Recv/TryRecv read the processor's outbound ClientEvent
// stream.
type Client struct {
	pusher Pusher
	events *queue.Unbounded
}

// New wires a Client to pusher (normally a *processor.Processor) and
// the ClientEvent queue that same processor publishes to.
func New(pusher Pusher, events *queue.Unbounded) *Client {
	return &Client{pusher: pusher, events: events}
}

// PushEvent submits evt to the core. Never blocks beyond the channel
// send itself, since the processor's inbound queue is unbounded.
func (c *Client) PushEvent(evt event.IndexerEvent) {
	c.pusher.Push(evt)
}

// Rx exposes the raw ClientEvent delivery channel for callers that
// want to select on it directly alongside their own shutdown signal.
func (c *Client) Rx() <-chan interface{} {
	return c.events.Out()
}

// Recv blocks until a ClientEvent is available, or returns ok=false
// if the underlying queue has been closed (the SDK is shutting down).
func (c *Client) Recv() (event.ClientEvent, bool) {
	v, ok := <-c.events.Out()
	if !ok {
		return event.ClientEvent{}, false
	}
	return v.(event.ClientEvent), true
}

// TryRecv is the non-blocking receive: ok is false if nothing is
// currently queued, never an error condition.
func (c *Client) TryRecv() (event.ClientEvent, bool) {
	v, ok := c.events.TryRecv()
	if !ok {
		return event.ClientEvent{}, false
	}
	return v.(event.ClientEvent), true
}

// GetBalance is the get_balance typed helper: submit a GetBalance
// event carrying a one-shot reply channel and block for the
// processor's answer.
func (c *Client) GetBalance(addr event.Address, token event.Token) (event.BalanceAmount, error) {
	evt, reply := event.GetBalanceEvent(addr, token)
	c.pusher.Push(evt)
	res := <-reply
	return res.Amount, res.Err
}

// UpdateDelta implements the update_delta typed helper.
func (c *Client) UpdateDelta(delta *event.TransactionDelta) {
	c.pusher.Push(event.UpdateDeltaEvent(delta))
}

// ReportHeight implements the report_height typed helper.
func (c *Client) ReportHeight(h uint32) {
	c.pusher.Push(event.ReportHeightEvent(h))
}

// ReportReorg implements the report_reorg typed helper.
func (c *Client) ReportReorg(txIds []event.TransactionId) {
	c.pusher.Push(event.ReportReorgEvent(txIds))
}
