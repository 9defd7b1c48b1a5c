package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySendDeliversToAnswerer(t *testing.T) {
	r := NewRegistry()
	k := Key{Namespace: "connection", ID: "abc"}
	ch := r.AddAnswerer(k)

	ok := r.Send(k, "payload")
	require.True(t, ok)
	assert.Equal(t, "payload", <-ch)

	r.RmAnswerer(k)
}

func TestRegistrySendWithNoAnswererReturnsFalse(t *testing.T) {
	r := NewRegistry()
	k := Key{Namespace: "connection", ID: "missing"}
	assert.False(t, r.Send(k, "payload"))
}

func TestRegistryAddAnswererTwicePanics(t *testing.T) {
	r := NewRegistry()
	k := Key{Namespace: "forward", ID: "dup"}
	r.AddAnswerer(k)
	assert.Panics(t, func() { r.AddAnswerer(k) })
}

func TestRegistryRmAnswererClosesChannel(t *testing.T) {
	r := NewRegistry()
	k := Key{Namespace: "connection", ID: "closing"}
	ch := r.AddAnswerer(k)
	r.RmAnswerer(k)

	_, ok := <-ch
	assert.False(t, ok)

	// idempotent
	r.RmAnswerer(k)
}

func TestFutureWait(t *testing.T) {
	r := NewRegistry()
	k := Key{Namespace: "connection", ID: "future"}
	ch := r.AddAnswerer(k)
	f := NewFuture(ch)

	r.Send(k, 42)
	v, ok := f.Wait()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestKeyString(t *testing.T) {
	k := Key{Namespace: "connection", ID: "abc"}
	assert.Equal(t, "connection/abc", k.String())
}
