package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// Stream merges events of several types from a Bus into one channel, for
// consumers that select on a channel (SSE handlers). A full channel drops
// the event rather than blocking the publisher.
type Stream struct {
	bus     *Bus
	ch      chan Event
	mu      sync.Mutex
	unsubs  []func()
	closed  bool
	dropped atomic.Uint64
}

// NewStream creates a stream buffering up to size events.
func NewStream(bus *Bus, size int) *Stream {
	return &Stream{bus: bus, ch: make(chan Event, size)}
}

// Forward adds events of type T to s.
func Forward[T Event](s *Stream) {
	ForwardIf(s, func(T) bool { return true })
}

// ForwardIf adds the events of type T for which keep returns true.
func ForwardIf[T Event](s *Stream, keep func(T) bool) {
	unsub := event.Subscribe(s.bus.dispatcher, func(e T) {
		if keep(e) {
			s.push(e)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsub()
		return
	}
	s.unsubs = append(s.unsubs, unsub)
}

func (s *Stream) push(e Event) {
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// C returns the channel events are delivered on.
func (s *Stream) C() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the channel was
// full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes from the bus. Buffered events stay readable.
func (s *Stream) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.closed = true
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
