// Package router implements the single shared lookup table from
// DID/verkey to the actor responsible for handling messages addressed
// to it, plus the one path outbound HTTP delivery takes: two maps plus
// a Requester handle, guarded by a single RWMutex since there is no
// actor-framework mailbox address type to reuse directly.
package router

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/vault-mesh/agency/internal/wire"
)

// A2AHandler handles an onion-routed agent-to-agent message addressed
// by DID or verkey: a ForwardAgent, ForwardAgentConnection, Agent or
// AgentConnection.
type A2AHandler interface {
	HandleA2A(ctx context.Context, msg []byte) ([]byte, error)
}

// A2ConnHandler handles an already-decrypted request addressed to a
// specific pairwise connection: an AgentConnection, dispatched
// in-process by its owning Agent rather than over the wire.
type A2ConnHandler interface {
	HandleA2Conn(ctx context.Context, req wire.ConnRequest) (wire.ConnResponse, error)
}

// Requester is the sink for outbound deliveries that leave the process.
type Requester interface {
	Deliver(ctx context.Context, msg wire.RemoteMsg) error
}

// Router is the single shared mutable structure in this module: every
// actor registers its own DID and verkey on boot and looks up
// counterparties' handlers through it, under a single RWMutex.
type Router struct {
	mu sync.RWMutex

	a2aRoutes map[string]A2AHandler
	a2connRoutes map[string]A2ConnHandler

	requester Requester
}

func New(requester Requester) *Router {
	return &Router{
		a2aRoutes: map[string]A2AHandler{},
		a2connRoutes: map[string]A2ConnHandler{},
		requester: requester,
	}
}

// AddA2ARoute registers handler under both did and verkey. Either key
// may already resolve to a different handler from an earlier identity
// generation; the new registration always wins.
func (r *Router) AddA2ARoute(did, verkey string, handler A2AHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	glog.V(2).Infof("router: a2a route %s / %s", did, verkey)
	r.a2aRoutes[did] = handler
	r.a2aRoutes[verkey] = handler
}

// AddA2ConnRoute registers handler for a pairwise connection's DID and
// verkey.
func (r *Router) AddA2ConnRoute(did, verkey string, handler A2ConnHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	glog.V(2).Infof("router: a2conn route %s / %s", did, verkey)
	r.a2connRoutes[did] = handler
	r.a2connRoutes[verkey] = handler
}

// RemoveA2ConnRoute drops both the did and verkey entries. No
// connection path in this module calls it: a redirected connection
// keeps its routes. Forward-agent and agent routes are never removed
// in this module since agents are not deleted once created.
func (r *Router) RemoveA2ConnRoute(did, verkey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.a2connRoutes, did)
	delete(r.a2connRoutes, verkey)
}

// RouteA2A dispatches msg to whichever actor owns did. Returns a wire
// NotFound error rather than panicking, since an unresolved route here
// is attacker-reachable input (a forward envelope naming a DID that no
// longer exists), not a programming error.
func (r *Router) RouteA2A(ctx context.Context, did string, msg []byte) ([]byte, error) {
	r.mu.RLock()
	h, ok := r.a2aRoutes[did]
	r.mu.RUnlock()
	if !ok {
		return nil, wire.Errf(wire.NotFound, "router.RouteA2A", nil, "no route for %s", did)
	}
	return h.HandleA2A(ctx, msg)
}

// RouteA2Conn dispatches req to the AgentConnection owning did.
func (r *Router) RouteA2Conn(ctx context.Context, did string, req wire.ConnRequest) (wire.ConnResponse, error) {
	r.mu.RLock()
	h, ok := r.a2connRoutes[did]
	r.mu.RUnlock()
	if !ok {
		return wire.ConnResponse{}, wire.Errf(wire.NotFound, "router.RouteA2Conn", nil, "no route for %s", did)
	}
	return h.HandleA2Conn(ctx, req)
}

// RouteToRequester hands msg to the outbound delivery singleton.
func (r *Router) RouteToRequester(ctx context.Context, msg wire.RemoteMsg) error {
	return r.requester.Deliver(ctx, msg)
}
