package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-mesh/agency/internal/wire"
)

type stubA2A struct {
	reply []byte
	err   error
	calls int
}

func (s *stubA2A) HandleA2A(ctx context.Context, msg []byte) ([]byte, error) {
	s.calls++
	return s.reply, s.err
}

type stubA2Conn struct {
	reply wire.ConnResponse
	err   error
}

func (s *stubA2Conn) HandleA2Conn(ctx context.Context, req wire.ConnRequest) (wire.ConnResponse, error) {
	return s.reply, s.err
}

type stubRequester struct {
	delivered []wire.RemoteMsg
	err       error
}

func (s *stubRequester) Deliver(ctx context.Context, msg wire.RemoteMsg) error {
	s.delivered = append(s.delivered, msg)
	return s.err
}

func TestRouteA2ADispatchesByDIDOrVerKey(t *testing.T) {
	r := New(&stubRequester{})
	h := &stubA2A{reply: []byte("pong")}
	r.AddA2ARoute("did:1", "vk1", h)

	out, err := r.RouteA2A(context.Background(), "did:1", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), out)

	out, err = r.RouteA2A(context.Background(), "vk1", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), out)
	assert.Equal(t, 2, h.calls)
}

func TestRouteA2AUnknownDIDReturnsNotFound(t *testing.T) {
	r := New(&stubRequester{})
	_, err := r.RouteA2A(context.Background(), "did:missing", []byte("ping"))
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.NotFound))
}

func TestAddA2ARouteOverwritesPriorRegistration(t *testing.T) {
	r := New(&stubRequester{})
	first := &stubA2A{reply: []byte("first")}
	second := &stubA2A{reply: []byte("second")}
	r.AddA2ARoute("did:1", "vk1", first)
	r.AddA2ARoute("did:1", "vk1", second)

	out, err := r.RouteA2A(context.Background(), "did:1", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), out)
}

func TestRouteA2ConnAndRemove(t *testing.T) {
	r := New(&stubRequester{})
	h := &stubA2Conn{reply: wire.ConnResponse{Op: wire.MsgCreateMessage}}
	r.AddA2ConnRoute("did:conn", "vk:conn", h)

	resp, err := r.RouteA2Conn(context.Background(), "did:conn", wire.ConnRequest{})
	require.NoError(t, err)
	assert.Equal(t, wire.MsgCreateMessage, resp.Op)

	r.RemoveA2ConnRoute("did:conn", "vk:conn")
	_, err = r.RouteA2Conn(context.Background(), "did:conn", wire.ConnRequest{})
	assert.True(t, wire.IsKind(err, wire.NotFound))
}

func TestRouteToRequesterDelegates(t *testing.T) {
	req := &stubRequester{}
	r := New(req)
	msg := wire.RemoteMsg{Endpoint: "https://example.test", Bytes: []byte("hi")}

	require.NoError(t, r.RouteToRequester(context.Background(), msg))
	require.Len(t, req.delivered, 1)
	assert.Equal(t, msg, req.delivered[0])
}
