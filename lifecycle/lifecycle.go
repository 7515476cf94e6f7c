// Package lifecycle defines the application and window signals query runners
// react to, plus a small in-process broadcaster for hosts that drive those
// transitions themselves.
package lifecycle

// ListenerID identifies a registered callback.
type ListenerID string

// Signal reports foreground/background transitions of the host application.
type Signal interface {
	// OnForeground registers fn to run when the application returns to the foreground.
	OnForeground(fn func()) ListenerID
	// OnBackground registers fn to run when the application moves to the background.
	OnBackground(fn func()) ListenerID
	RemoveForeground(id ListenerID)
	RemoveBackground(id ListenerID)
	// IsBackground reports whether the application is currently backgrounded.
	IsBackground() bool
}

// FocusSignal reports window focus transitions. Platforms without a notion of
// window focus return false from IsSupported and never fire.
type FocusSignal interface {
	OnFocus(fn func()) ListenerID
	OnBlur(fn func()) ListenerID
	RemoveFocus(id ListenerID)
	RemoveBlur(id ListenerID)
	IsSupported() bool
}

type unsupportedFocus struct{}

// Unsupported returns a FocusSignal for platforms without window focus.
func Unsupported() FocusSignal { return unsupportedFocus{} }

func (unsupportedFocus) OnFocus(func()) ListenerID { return "" }
func (unsupportedFocus) OnBlur(func()) ListenerID  { return "" }
func (unsupportedFocus) RemoveFocus(ListenerID)    {}
func (unsupportedFocus) RemoveBlur(ListenerID)     {}
func (unsupportedFocus) IsSupported() bool         { return false }
