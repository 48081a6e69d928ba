package flow

import "sync"

// State is the observable latest-value cell of a flow. It starts at
// Success(empty).
//
// Every subscriber has a one-slot channel that always holds the newest
// value not yet received, so a slow subscriber skips intermediate values
// but never sees them out of order.
type State[T any] struct {
	mu     sync.Mutex
	value  Result[T]
	subs   map[uint64]chan Result[T]
	nextID uint64
	sealed bool
	closed bool
}

func newState[T any]() *State[T] {
	return &State[T]{
		value: Success[T](nil),
		subs:  make(map[uint64]chan Result[T]),
	}
}

// Value returns the current published result.
func (s *State[T]) Value() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Subscribe returns a channel that immediately holds the current value and
// then receives every later change. The cancel func closes the channel and
// may be called more than once. After the flow shuts down the channel
// holds the final value and is closed.
func (s *State[T]) Subscribe() (<-chan Result[T], func()) {
	ch := make(chan Result[T], 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	ch <- s.value
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (s *State[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// set publishes v unless the cell is sealed or v is the same as the current
// value.
func (s *State[T]) set(v Result[T], same func(a, b Result[T]) bool) (published, sealed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false, true
	}
	if same(s.value, v) {
		return false, false
	}
	s.value = v
	for _, ch := range s.subs {
		offer(ch, v)
	}
	return true, false
}

// seal rejects every later set.
func (s *State[T]) seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// close seals the cell and closes every subscriber channel.
func (s *State[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// offer replaces whatever the slot holds with v. Callers hold the state
// mutex, so there is never a competing sender.
func offer[T any](ch chan Result[T], v Result[T]) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
