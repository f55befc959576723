package monitor

import "sync"

// Emitter fans an event out to a dynamic set of subscribers. Handlers are
// invoked synchronously in subscription order, outside the emitter lock.
type Emitter[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (e *Emitter[T]) Subscribe(fn func(T)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[uint64]func(T))
	}
	id := e.nextID
	e.nextID++
	e.handlers[id] = fn
	e.order = append(e.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.handlers, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Emit delivers v to every current subscriber.
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	fns := make([]func(T), 0, len(e.order))
	for _, id := range e.order {
		fns = append(fns, e.handlers[id])
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Clear removes every subscriber.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = nil
	e.order = nil
}
