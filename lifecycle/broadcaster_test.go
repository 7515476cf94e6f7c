package lifecycle

import (
	"testing"

	"github.com/agentuity/go-query/logger"
	"github.com/stretchr/testify/assert"
)

func TestBroadcasterTransitions(t *testing.T) {
	b := NewBroadcaster(logger.NewTestLogger())
	var fg, bg int
	b.OnForeground(func() { fg++ })
	b.OnBackground(func() { bg++ })

	assert.False(t, b.IsBackground())
	b.SetBackground(false)
	assert.Equal(t, 0, fg, "no transition, no callback")

	b.SetBackground(true)
	b.SetBackground(true)
	assert.True(t, b.IsBackground())
	assert.Equal(t, 1, bg)

	b.SetBackground(false)
	assert.Equal(t, 1, fg)
}

func TestBroadcasterRemove(t *testing.T) {
	b := NewBroadcaster(logger.NewTestLogger())
	var a, c int
	id := b.OnFocus(func() { a++ })
	b.OnFocus(func() { c++ })
	blur := b.OnBlur(func() { a += 10 })

	b.RemoveFocus(id)
	b.RemoveBlur(blur)
	b.SetFocused(false)
	b.SetFocused(true)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, c)
	assert.True(t, b.IsFocused())
	assert.True(t, b.IsSupported())
}

func TestBroadcasterListenerPanic(t *testing.T) {
	log := logger.NewTestLogger()
	b := NewBroadcaster(log)
	var after int
	b.OnBackground(func() { panic("listener bug") })
	b.OnBackground(func() { after++ })

	assert.NotPanics(t, func() { b.SetBackground(true) })
	assert.Equal(t, 1, after)
	assert.Equal(t, 1, log.Count("ERROR", "listener bug"))
}

func TestUnsupportedFocus(t *testing.T) {
	f := Unsupported()
	assert.False(t, f.IsSupported())
	assert.Equal(t, ListenerID(""), f.OnFocus(func() { t.Fatal("must not fire") }))
	f.RemoveFocus("")
}
