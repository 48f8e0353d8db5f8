package storkit

import (
	"sync"
	"sync/atomic"
)

// ChangeToken signals that something under a watched path changed.
// Tokens are single-use: once changed they stay changed. Consumers either
// poll HasChanged or register a callback.
type ChangeToken interface {
	// HasChanged returns true once a change has occurred.
	HasChanged() bool

	// ActiveChangeCallbacks indicates whether the token proactively
	// invokes callbacks. When false, consumers should poll instead.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback invoked on change and
	// returns a function to unregister it.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CallbackChangeToken is a ChangeToken backed by native events.
// Drivers call SignalChange when they detect a change.
type CallbackChangeToken struct {
	mu        sync.RWMutex
	changed   atomic.Bool
	callbacks []func()
}

// NewCallbackChangeToken creates a token that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.changed.Load()
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, callback)
	index := len(t.callbacks) - 1
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if index < len(t.callbacks) {
			// Nil out instead of removing to avoid index shifting.
			t.callbacks[index] = nil
		}
	}
}

// SignalChange marks the token as changed and invokes all callbacks.
// Called by the driver when a change is detected; safe to call more than
// once, only the first call fires callbacks.
func (t *CallbackChangeToken) SignalChange() {
	if t.changed.Swap(true) {
		return
	}

	t.mu.RLock()
	callbacks := make([]func(), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

// CompositeChangeToken combines multiple tokens; it reports changed when
// any underlying token has changed.
type CompositeChangeToken struct {
	tokens []ChangeToken
}

// NewCompositeChangeToken creates a token over the given tokens.
func NewCompositeChangeToken(tokens ...ChangeToken) *CompositeChangeToken {
	return &CompositeChangeToken{tokens: tokens}
}

func (c *CompositeChangeToken) HasChanged() bool {
	for _, t := range c.tokens {
		if t.HasChanged() {
			return true
		}
	}
	return false
}

func (c *CompositeChangeToken) ActiveChangeCallbacks() bool {
	for _, t := range c.tokens {
		if !t.ActiveChangeCallbacks() {
			return false
		}
	}
	return len(c.tokens) > 0
}

func (c *CompositeChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	unregisters := make([]func(), 0, len(c.tokens))
	for _, t := range c.tokens {
		unregisters = append(unregisters, t.RegisterChangeCallback(callback))
	}
	return func() {
		for _, u := range unregisters {
			u()
		}
	}
}

// NeverChangeToken never changes. Returned for static content.
type NeverChangeToken struct{}

func (NeverChangeToken) HasChanged() bool            { return false }
func (NeverChangeToken) ActiveChangeCallbacks() bool { return false }
func (NeverChangeToken) RegisterChangeCallback(func()) func() {
	return func() {}
}

var (
	_ ChangeToken = (*CallbackChangeToken)(nil)
	_ ChangeToken = (*CompositeChangeToken)(nil)
	_ ChangeToken = NeverChangeToken{}
)
