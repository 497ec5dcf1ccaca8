// Package component implements the shared lifecycle every long-running
// part of the SDK follows: Init (synchronous validation, fatal on
// failure), BeforeStart (optional startup work, sequenced so downstream
// components don't see events before it completes) and Run (an event
// loop selecting between its inbound channel and a shared shutdown
// signal). Components are plain interfaces driven by a small Harness;
// there is no hierarchy to subclass.
package component

import (
	"sync"
	"time"

	"github.com/pkt-cash/indexer-sdk/er"
	logpkg "github.com/pkt-cash/indexer-sdk/log"
)

var log logpkg.Logger = logpkg.Disabled

// UseLogger assigns the subsystem logger used by this package.
func UseLogger(logger logpkg.Logger) {
	log = logger
}

// Lifecycle is the three-phase contract every managed component
// implements. BeforeStart may be a no-op (return nil immediately) for
// components with no startup work.
type Lifecycle interface {
	// Name identifies the component in logs.
	Name() string

	// Init performs synchronous validation and resource acquisition.
	// A non-nil error here is fatal for the whole SDK.
	Init() er.R

	// BeforeStart runs once, before Run is ever invoked. It may inject
	// events into downstream channels; Harness runs every registered
	// component's BeforeStart sequentially, in registration order,
	// before any Run loop starts.
	BeforeStart() er.R

	// Run is the component's event loop. It must return once shutdown
	// is closed, after completing any in-flight handle_event and
	// releasing its I/O handles.
	Run(shutdown <-chan struct{})
}

// Harness sequences a set of components through Init -> BeforeStart ->
// Run, and drives a shared shutdown signal across all of them.
type Harness struct {
	shutdown chan struct{}
	runWg    sync.WaitGroup

	mu         sync.Mutex
	components []Lifecycle
}

// New creates an empty Harness.
func New() *Harness {
	return &Harness{shutdown: make(chan struct{})}
}

// Add registers a component and runs its Init phase immediately. Init
// failure is returned to the caller and the component is not added.
func (h *Harness) Add(c Lifecycle) er.R {
	if err := c.Init(); err != nil {
		return err
	}
	h.mu.Lock()
	h.components = append(h.components, c)
	h.mu.Unlock()
	return nil
}

// Start runs BeforeStart for every registered component, in
// registration order, then launches each one's Run loop on its own
// goroutine. BeforeStart calls are sequential and synchronous so that
// a component ordered "after" another only starts once the earlier
// one's startup work (including any events it injected downstream,
// e.g. mempool restore) has completed.
func (h *Harness) Start() er.R {
	h.mu.Lock()
	components := append([]Lifecycle(nil), h.components...)
	h.mu.Unlock()

	for _, c := range components {
		if err := c.BeforeStart(); err != nil {
			return err
		}
	}
	for _, c := range components {
		c := c
		h.runWg.Add(1)
		go func() {
			defer h.runWg.Done()
			h.runGuarded(c)
		}()
	}
	return nil
}

// runGuarded wraps a component's Run loop with panic containment: each
// component goroutine recovers locally, logs, and lets the rest of the
// SDK keep running rather than taking the whole process down.
func (h *Harness) runGuarded(c Lifecycle) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("component %s panicked: %v", c.Name(), r)
		}
	}()
	c.Run(h.shutdown)
}

// Shutdown closes the shared shutdown signal and waits up to grace for
// every component's Run loop to return.
func (h *Harness) Shutdown(grace time.Duration) {
	close(h.shutdown)
	done := make(chan struct{})
	go func() {
		h.runWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warnf("shutdown: grace period of %v elapsed with components still running", grace)
	}
}

// ShutdownSignal exposes the shared shutdown channel, e.g. for a
// component constructed outside Harness.Add that still needs to honor
// it.
func (h *Harness) ShutdownSignal() <-chan struct{} {
	return h.shutdown
}
