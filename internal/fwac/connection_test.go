package fwac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-mesh/agency/internal/memwallet"
	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

type stubRequester struct{}

func (stubRequester) Deliver(ctx context.Context, msg wire.RemoteMsg) error { return nil }

type stubAgentFactory struct {
	created int
}

func (s *stubAgentFactory) Create(ctx context.Context, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail) (AgentWalletInfo, string, string, error) {
	s.created++
	return AgentWalletInfo{WalletID: "agent-wallet", AgentDID: "did:agent"}, "did:agent", "vk:agent", nil
}

func (s *stubAgentFactory) Restore(ctx context.Context, info AgentWalletInfo, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail) error {
	return nil
}

// testRig bundles one wallet/handle shared by both the agency side and
// the owner side: AuthCrypt/AuthDecrypt only need the acting verkey's
// key material to be present in the wallet, so using one wallet for
// both identities keeps these tests focused on the handshake logic
// rather than cross-wallet plumbing.
type testRig struct {
	w      walletapi.Wallet
	h      walletapi.Handle
	rtr    *router.Router
	mgr    *Manager
	agents *stubAgentFactory
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	ctx := context.Background()
	w := memwallet.New(t.TempDir())
	cfg := walletapi.Config{ID: "agency"}
	require.NoError(t, w.Create(ctx, cfg, walletapi.Credentials{}))
	h, err := w.Open(ctx, cfg, walletapi.Credentials{})
	require.NoError(t, err)

	rtr := router.New(stubRequester{})
	detail := wire.ForwardAgentDetail{DID: "did:agency", VerKey: "vk:agency", Endpoint: "https://agency.test"}
	agents := &stubAgentFactory{}
	return &testRig{w: w, h: h, rtr: rtr, mgr: NewManager(w, h, rtr, detail, agents), agents: agents}
}

func (r *testRig) newOwner(t *testing.T) walletapi.DID {
	t.Helper()
	did, err := r.w.CreateAndStoreMyDID(context.Background(), r.h, nil)
	require.NoError(t, err)
	return did
}

func TestManagerCreateRegistersRoute(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	fwacDID, fwacVK, err := r.mgr.Create(context.Background(), owner.DID, owner.VerKey)
	require.NoError(t, err)
	assert.NotEmpty(t, fwacDID)
	assert.NotEmpty(t, fwacVK)

	_, err = r.rtr.RouteA2A(context.Background(), fwacDID, nil)
	assert.Error(t, err) // nil msg fails to unbundle, but the route exists
	assert.False(t, wire.IsKind(err, wire.NotFound))
}

func TestManagerCreateRefusesDuplicateOwnerDID(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, _, err := r.mgr.Create(context.Background(), owner.DID, owner.VerKey)
	require.NoError(t, err)

	_, _, err = r.mgr.Create(context.Background(), owner.DID, owner.VerKey)
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.Conflict))
}

func TestSignUpThenCreateAgentHandshake(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	owner := r.newOwner(t)

	fwacDID, fwacVK, err := r.mgr.Create(ctx, owner.DID, owner.VerKey)
	require.NoError(t, err)

	signUpMsg, err := wire.Bundle(ctx, r.w, r.h, wire.V2, owner.VerKey, fwacVK, wire.MsgSignUp, wire.SignUp{})
	require.NoError(t, err)

	out, err := r.rtr.RouteA2A(ctx, fwacDID, signUpMsg)
	require.NoError(t, err)

	_, env, _, err := wire.Unbundle(ctx, r.w, r.h, owner.VerKey, out)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgSignedUp, env.Type)

	signUpMsg2, err := wire.Bundle(ctx, r.w, r.h, wire.V2, owner.VerKey, fwacVK, wire.MsgSignUp, wire.SignUp{})
	require.NoError(t, err)
	_, err = r.rtr.RouteA2A(ctx, fwacDID, signUpMsg2)
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.Conflict))

	createAgentMsg, err := wire.Bundle(ctx, r.w, r.h, wire.V2, owner.VerKey, fwacVK, wire.MsgCreateAgent, wire.CreateAgent{})
	require.NoError(t, err)
	out, err = r.rtr.RouteA2A(ctx, fwacDID, createAgentMsg)
	require.NoError(t, err)

	_, env, _, err = wire.Unbundle(ctx, r.w, r.h, owner.VerKey, out)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgAgentCreated, env.Type)
	assert.Equal(t, 1, r.agents.created)
}

func TestCreateAgentRequiresSignUp(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	owner := r.newOwner(t)

	fwacDID, fwacVK, err := r.mgr.Create(ctx, owner.DID, owner.VerKey)
	require.NoError(t, err)

	createAgentMsg, err := wire.Bundle(ctx, r.w, r.h, wire.V2, owner.VerKey, fwacVK, wire.MsgCreateAgent, wire.CreateAgent{})
	require.NoError(t, err)
	_, err = r.rtr.RouteA2A(ctx, fwacDID, createAgentMsg)
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.Conflict))
}

func TestRestoreAllRebuildsRoutesAndAgents(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	owner := r.newOwner(t)

	fwacDID, fwacVK, err := r.mgr.Create(ctx, owner.DID, owner.VerKey)
	require.NoError(t, err)

	signUpMsg, err := wire.Bundle(ctx, r.w, r.h, wire.V2, owner.VerKey, fwacVK, wire.MsgSignUp, wire.SignUp{})
	require.NoError(t, err)
	_, err = r.rtr.RouteA2A(ctx, fwacDID, signUpMsg)
	require.NoError(t, err)

	createAgentMsg, err := wire.Bundle(ctx, r.w, r.h, wire.V2, owner.VerKey, fwacVK, wire.MsgCreateAgent, wire.CreateAgent{})
	require.NoError(t, err)
	_, err = r.rtr.RouteA2A(ctx, fwacDID, createAgentMsg)
	require.NoError(t, err)

	freshRouter := router.New(stubRequester{})
	detail := wire.ForwardAgentDetail{DID: "did:agency", VerKey: "vk:agency", Endpoint: "https://agency.test"}
	freshMgr := NewManager(r.w, r.h, freshRouter, detail, r.agents)
	require.NoError(t, freshMgr.RestoreAll(ctx))

	_, err = freshRouter.RouteA2A(ctx, fwacDID, nil)
	assert.False(t, wire.IsKind(err, wire.NotFound))
}
