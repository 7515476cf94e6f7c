package cache

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Listener is called with the new entry for a key, or nil when the entry
// was removed, evicted or expired.
type Listener func(entry *Entry)

// ListenerID identifies a registered Listener.
type ListenerID string

type listenerSlot struct {
	id ListenerID
	fn Listener
}

type notification struct {
	key   string
	entry *Entry
	fns   []Listener
}

// AddListener registers fn for key and returns a handle for RemoveListener.
func (s *Store) AddListener(key string, fn Listener) ListenerID {
	id := ListenerID(uuid.NewString())
	s.mu.Lock()
	s.listeners[key] = append(s.listeners[key], listenerSlot{id: id, fn: fn})
	s.mu.Unlock()
	return id
}

// RemoveListener unregisters a single listener. Unknown ids are ignored.
func (s *Store) RemoveListener(key string, id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.listeners[key]
	for i, slot := range slots {
		if slot.id == id {
			slots = append(slots[:i:i], slots[i+1:]...)
			break
		}
	}
	if len(slots) == 0 {
		delete(s.listeners, key)
		return
	}
	s.listeners[key] = slots
}

// RemoveAllListeners unregisters every listener of key.
func (s *Store) RemoveAllListeners(key string) {
	s.mu.Lock()
	delete(s.listeners, key)
	s.mu.Unlock()
}

// ListenerCount returns the number of listeners registered for key.
func (s *Store) ListenerCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[key])
}

// pendingLocked snapshots the listeners of key so they can be called once
// the lock is released.
func (s *Store) pendingLocked(key string, entry *Entry) notification {
	slots := s.listeners[key]
	fns := make([]Listener, len(slots))
	for i, slot := range slots {
		fns[i] = slot.fn
	}
	return notification{key: key, entry: entry, fns: fns}
}

func (s *Store) notify(pending ...notification) {
	for _, n := range pending {
		for _, fn := range n.fns {
			s.safeCall(n.key, fn, n.entry)
		}
	}
}

// safeCall shields the store from a misbehaving listener: a panic is logged
// and the remaining listeners still run.
func (s *Store) safeCall(key string, fn Listener, entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("cache listener panic: %v", r)
			s.logger.With(map[string]interface{}{"key": key}).Error("%v", err)
		}
	}()
	fn(entry)
}
