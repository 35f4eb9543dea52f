package pipelink

import "sync"

// Signal is an observer list owned by the component that emits it.
// Slots connected with Connect run synchronously on the emitting goroutine;
// slots connected with ConnectAsync run on their own goroutine per emission.
//
// Connect returns a token because Go functions are not comparable;
// pass it to Disconnect to remove the slot.
type Signal[T any] struct {
	mu    sync.Mutex
	next  int
	slots []signalSlot[T]
}

type signalSlot[T any] struct {
	token int
	fn    func(T)
	async bool
}

// Connect registers a synchronous slot and returns its token.
func (s *Signal[T]) Connect(fn func(T)) int {
	return s.connect(fn, false)
}

// ConnectAsync registers a slot that is invoked on a fresh goroutine for
// every emission, so a slow observer cannot stall the emitter.
func (s *Signal[T]) ConnectAsync(fn func(T)) int {
	return s.connect(fn, true)
}

func (s *Signal[T]) connect(fn func(T), async bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	s.slots = append(s.slots, signalSlot[T]{token: s.next, fn: fn, async: async})
	return s.next
}

// Disconnect removes the slot registered under token. Unknown tokens are
// ignored.
func (s *Signal[T]) Disconnect(token int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, slot := range s.slots {
		if slot.token == token {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return
		}
	}
}

// Clear removes all slots.
func (s *Signal[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = nil
}

// Emit invokes every connected slot with v.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	slots := make([]signalSlot[T], len(s.slots))
	copy(slots, s.slots)
	s.mu.Unlock()

	for _, slot := range slots {
		if slot.async {
			go slot.fn(v)
		} else {
			slot.fn(v)
		}
	}
}
