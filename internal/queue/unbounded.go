// Package queue implements an unbounded, single-output channel: sends
// never block, backed by a growable internal buffer pumped onto an
// output channel by one goroutine. It backs the client bridge's
// multi-producer/multi-consumer event queue and the processor's
// inbound event channel, so that a slow consumer (the handler) never
// applies back-pressure to a producer that must never block (a ZMQ
// socket read, a reply channel close).
package queue

// Unbounded is a many-producer, single-consumer unbounded queue of
// arbitrary values.
type Unbounded struct {
	in   chan interface{}
	out  chan interface{}
	stop chan struct{}
}

// New creates and starts an Unbounded queue.
func New() *Unbounded {
	u := &Unbounded{
		in:   make(chan interface{}),
		out:  make(chan interface{}),
		stop: make(chan struct{}),
	}
	go u.pump()
	return u
}

func (u *Unbounded) pump() {
	defer close(u.out)
	var buf []interface{}
	for {
		if len(buf) == 0 {
			select {
			case v, ok := <-u.in:
				if !ok {
					return
				}
				buf = append(buf, v)
			case <-u.stop:
				return
			}
			continue
		}
		select {
		case v, ok := <-u.in:
			if !ok {
				// Drain what's buffered before exiting so a closing
				// producer doesn't lose already-accepted sends.
				for _, b := range buf {
					u.out <- b
				}
				return
			}
			buf = append(buf, v)
		case u.out <- buf[0]:
			buf = buf[1:]
		case <-u.stop:
			for _, b := range buf {
				u.out <- b
			}
			return
		}
	}
}

// Send enqueues v. Never blocks the caller on a slow consumer.
func (u *Unbounded) Send(v interface{}) {
	select {
	case u.in <- v:
	case <-u.stop:
	}
}

// Out returns the channel values are delivered on, for blocking
// receives (range over it, or select against it).
func (u *Unbounded) Out() <-chan interface{} {
	return u.out
}

// TryRecv is a non-blocking receive: ok is false if nothing is
// currently available, and it never requires a task/async context to
// poll from.
func (u *Unbounded) TryRecv() (interface{}, bool) {
	select {
	case v, ok := <-u.out:
		return v, ok
	default:
		return nil, false
	}
}

// Close stops the pump goroutine. Pending buffered sends that have
// already been accepted by Send are still delivered; anything sent
// after Close may be silently dropped.
func (u *Unbounded) Close() {
	close(u.stop)
}
