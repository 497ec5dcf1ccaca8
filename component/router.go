package component

import "github.com/pkt-cash/indexer-sdk/event"

// Interested is implemented by a component that wants to self-filter
// events broadcast by a Router: an interest(event) -> bool predicate
// on each component lets a router broadcast events to a fan-out of
// components that self-filter. The processor accepts every kind in the
// current union; a future block-follower component could register
// alongside it and receive only the TxConfirmed/TxRemoved events it
// cares about.
type Interested interface {
	// Interest reports whether evt should be delivered to this
	// component at all.
	Interest(evt event.IndexerEvent) bool

	// Dispatch delivers evt. Called only when Interest returned true.
	Dispatch(evt event.IndexerEvent)
}

// Router broadcasts an event to every registered Interested component
// whose Interest predicate accepts it.
type Router struct {
	targets []Interested
}

// NewRouter creates a Router fanning out to targets.
func NewRouter(targets ...Interested) *Router {
	return &Router{targets: targets}
}

// Push delivers evt to every interested target. The method is named to
// satisfy the same Push-shaped sink interfaces (zmqingest.Sink,
// client.Pusher) a single component satisfies directly, so a Router
// can be dropped in wherever one component was wired.
func (r *Router) Push(evt event.IndexerEvent) {
	for _, t := range r.targets {
		if t.Interest(evt) {
			t.Dispatch(evt)
		}
	}
}
