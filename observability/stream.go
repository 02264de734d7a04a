// Package observability wires the daemon's log output: a rotating file,
// stderr, and an in-process broadcaster that feeds the admin API's live
// log stream.
package observability

import "sync"

// streamBuffer is how many lines a slow subscriber may lag before
// lines are dropped for it.
const streamBuffer = 64

// Stream fans log lines out to any number of subscribers. Publishing
// never blocks; a subscriber that stops draining loses lines, not the
// daemon.
type Stream struct {
	mu   sync.Mutex
	subs map[int]chan string
	next int
}

// NewStream creates an empty broadcaster.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan string)}
}

// Subscribe returns a line channel and a cancel function. The channel
// is closed on cancel.
func (s *Stream) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan string, streamBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers one line to every subscriber that can take it.
func (s *Stream) Publish(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
}
