package lifecycle

import (
	"sync"

	"github.com/agentuity/go-query/logger"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type event int

const (
	eventForeground event = iota
	eventBackground
	eventFocus
	eventBlur
)

func (e event) String() string {
	switch e {
	case eventForeground:
		return "foreground"
	case eventBackground:
		return "background"
	case eventFocus:
		return "focus"
	case eventBlur:
		return "blur"
	default:
		return "unknown"
	}
}

type slot struct {
	id ListenerID
	fn func()
}

// Broadcaster is a Signal and FocusSignal driven by explicit calls to
// SetBackground and SetFocused. Callbacks fire only on actual transitions, in
// registration order, outside the internal lock.
type Broadcaster struct {
	mu         sync.Mutex
	listeners  map[event][]slot
	background bool
	focused    bool
	logger     logger.Logger
}

var (
	_ Signal      = (*Broadcaster)(nil)
	_ FocusSignal = (*Broadcaster)(nil)
)

// NewBroadcaster returns a Broadcaster in the foreground with focus.
func NewBroadcaster(log logger.Logger) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[event][]slot),
		focused:   true,
		logger:    logger.OrDefault(log).WithPrefix("[lifecycle]"),
	}
}

func (b *Broadcaster) add(ev event, fn func()) ListenerID {
	id := ListenerID(uuid.NewString())
	b.mu.Lock()
	b.listeners[ev] = append(b.listeners[ev], slot{id: id, fn: fn})
	b.mu.Unlock()
	return id
}

func (b *Broadcaster) remove(ev event, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := b.listeners[ev]
	for i, s := range slots {
		if s.id == id {
			b.listeners[ev] = append(slots[:i:i], slots[i+1:]...)
			return
		}
	}
}

func (b *Broadcaster) OnForeground(fn func()) ListenerID { return b.add(eventForeground, fn) }
func (b *Broadcaster) OnBackground(fn func()) ListenerID { return b.add(eventBackground, fn) }
func (b *Broadcaster) OnFocus(fn func()) ListenerID      { return b.add(eventFocus, fn) }
func (b *Broadcaster) OnBlur(fn func()) ListenerID       { return b.add(eventBlur, fn) }

func (b *Broadcaster) RemoveForeground(id ListenerID) { b.remove(eventForeground, id) }
func (b *Broadcaster) RemoveBackground(id ListenerID) { b.remove(eventBackground, id) }
func (b *Broadcaster) RemoveFocus(id ListenerID)      { b.remove(eventFocus, id) }
func (b *Broadcaster) RemoveBlur(id ListenerID)       { b.remove(eventBlur, id) }

// IsSupported is always true: focus is whatever SetFocused last reported.
func (b *Broadcaster) IsSupported() bool { return true }

func (b *Broadcaster) IsBackground() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.background
}

// IsFocused reports the last focus state passed to SetFocused.
func (b *Broadcaster) IsFocused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// SetBackground records the application state and fires OnBackground or
// OnForeground callbacks when it changed.
func (b *Broadcaster) SetBackground(background bool) {
	ev := eventForeground
	if background {
		ev = eventBackground
	}
	b.transition(ev, func() bool {
		changed := b.background != background
		b.background = background
		return changed
	})
}

// SetFocused records window focus and fires OnFocus or OnBlur callbacks when
// it changed.
func (b *Broadcaster) SetFocused(focused bool) {
	ev := eventBlur
	if focused {
		ev = eventFocus
	}
	b.transition(ev, func() bool {
		changed := b.focused != focused
		b.focused = focused
		return changed
	})
}

func (b *Broadcaster) transition(ev event, apply func() bool) {
	b.mu.Lock()
	if !apply() {
		b.mu.Unlock()
		return
	}
	slots := append([]slot(nil), b.listeners[ev]...)
	b.mu.Unlock()

	b.logger.Debug("%s: notifying %d listeners", ev, len(slots))
	for _, s := range slots {
		b.call(ev, s.fn)
	}
}

func (b *Broadcaster) call(ev event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("%v", errors.Newf("%s listener panic: %v", ev, r))
		}
	}()
	fn()
}
