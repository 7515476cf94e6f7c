package query

import (
	"github.com/agentuity/go-query/logger"
	"github.com/cockroachdb/errors"
)

type subscriber[S any] struct {
	id int
	fn func(S)
}

// subscribers is guarded by the owner's mutex.
type subscribers[S any] struct {
	next  int
	slots []subscriber[S]
}

func (s *subscribers[S]) add(fn func(S)) int {
	s.next++
	s.slots = append(s.slots, subscriber[S]{id: s.next, fn: fn})
	return s.next
}

func (s *subscribers[S]) remove(id int) {
	for i, slot := range s.slots {
		if slot.id == id {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			return
		}
	}
}

func (s *subscribers[S]) clear() {
	s.slots = nil
}

func (s *subscribers[S]) snapshot() []func(S) {
	if len(s.slots) == 0 {
		return nil
	}
	fns := make([]func(S), len(s.slots))
	for i, slot := range s.slots {
		fns[i] = slot.fn
	}
	return fns
}

// transition is a state change waiting to be delivered once the owner's lock
// is released.
type transition[S any] struct {
	state S
	fns   []func(S)
}

func (t transition[S]) deliver(log logger.Logger) {
	for _, fn := range t.fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("%v", errors.Newf("subscriber panic: %v", r))
				}
			}()
			fn(t.state)
		}()
	}
}
