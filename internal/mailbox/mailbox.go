// Package mailbox provides keyed question/answer plumbing for talking
// between actors without sharing mutable state: a single process-wide
// registry keyed by an opaque Key, with a channel delivered to whoever
// is waiting for the matching answer. No other package in this module
// imports it; the actor packages call each other directly.
package mailbox

import (
	"fmt"
	"sync"
)

// Key identifies one outstanding question: a namespace plus an ID
// string such as a connection ID or a message UID.
type Key struct {
	Namespace string // e.g. "connection", "forward"
	ID string
}

func (k Key) String() string { return k.Namespace + "/" + k.ID }

// Registry is a keyed answerer table: register interest in a Key with
// AddAnswerer, and any SendQuestion for that Key is delivered to the
// channel returned by AddAnswerer. A run loop can drain that channel
// in a select alongside its inbound channel.
type Registry struct {
	mu sync.Mutex
	chans map[Key]chan any
}

func NewRegistry() *Registry {
	return &Registry{chans: map[Key]chan any{}}
}

// AddAnswerer registers k and returns the channel future answers (or
// questions, depending on direction) for k arrive on. Panics if k is
// already registered -- that is a programming error in the calling
// actor, never a runtime condition to recover from.
func (r *Registry) AddAnswerer(k Key) <-chan any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chans[k]; exists {
		panic(fmt.Sprintf("mailbox: answerer already registered for %s", k))
	}
	ch := make(chan any, 1)
	r.chans[k] = ch
	return ch
}

// RmAnswerer removes k's registration. Safe to call even if k was never
// registered or was already removed.
func (r *Registry) RmAnswerer(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.chans[k]; ok {
		close(ch)
		delete(r.chans, k)
	}
}

// Send delivers msg to k's registered channel and reports whether
// anyone was listening. A false return means the question's answerer
// has gone away (connection closed, actor stopped) -- callers treat
// this as a no-op, not an error, since the asker may have already
// timed out.
func (r *Registry) Send(k Key, msg any) bool {
	r.mu.Lock()
	ch, ok := r.chans[k]
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

// Future is a single-use, type-asserting convenience wrapper around a
// channel returned by AddAnswerer, for call sites that only ever
// expect one value of a known type back.
type Future struct {
	ch <-chan any
}

func NewFuture(ch <-chan any) Future { return Future{ch: ch} }

// Wait blocks for the single value sent to this future's channel.
// ok is false if the channel was closed (RmAnswerer called) before a
// value arrived.
func (f Future) Wait() (v any, ok bool) {
	v, ok = <-f.ch
	return v, ok
}
