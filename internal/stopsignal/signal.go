// Package stopsignal provides the cancellation token shared by a session and its caller.
//
// The token is a single atomic flag. The caller keeps the Trigger; the session
// polls the Token once per receive iteration and sends one stop request
// upstream after the first time it observes the flag set.
package stopsignal

import "sync/atomic"

// Token is the read side of the flag.
type Token struct {
	stop atomic.Bool
}

// Trigger sets the flag. Calling it more than once has no further effect.
type Trigger func()

// New returns a token and its trigger.
func New() (*Token, Trigger) {
	t := &Token{}
	return t, t.set
}

// IsSet reports whether the trigger has been called.
func (t *Token) IsSet() bool {
	return t.stop.Load()
}

func (t *Token) set() {
	t.stop.Store(true)
}
