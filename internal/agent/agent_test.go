package agent

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

type stubConnFactory struct {
	created int
}

func (s *stubConnFactory) Create(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail, req wire.CreateKey) (string, string, error) {
	s.created++
	return "did:conn", "vk:conn", nil
}

func (s *stubConnFactory) RestoreAll(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail) error {
	return nil
}

type rig struct {
	w     walletapi.Wallet
	h     walletapi.Handle
	rtr   *router.Router
	conns *stubConnFactory
	f     *Factory

	detail wire.ForwardAgentDetail
}

func newRig(t *testing.T) *rig {
	t.Helper()
	ctx := context.Background()
	w := memwallet.New(t.TempDir())
	cfg := walletapi.Config{ID: "agency"}
	require.NoError(t, w.Create(ctx, cfg, walletapi.Credentials{}))
	h, err := w.Open(ctx, cfg, walletapi.Credentials{})
	require.NoError(t, err)

	rtr := router.New(stubRequester{})
	conns := &stubConnFactory{}
	detail := wire.ForwardAgentDetail{DID: "did:agency", VerKey: "vk:agency", Endpoint: "https://agency.test"}
	return &rig{w: w, h: h, rtr: rtr, conns: conns, f: NewFactory(w, rtr, conns), detail: detail}
}

func (r *rig) newOwner(t *testing.T) walletapi.DID {
	t.Helper()
	did, err := r.w.CreateAndStoreMyDID(context.Background(), r.h, nil)
	require.NoError(t, err)
	return did
}

func TestFactoryCreateRegistersRoute(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	info, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)
	assert.NotEmpty(t, info.WalletID)
	assert.Equal(t, agentDID, info.AgentDID)
	assert.NotEmpty(t, agentVerKey)

	_, err = r.rtr.RouteA2A(context.Background(), agentDID, nil)
	assert.Error(t, err)
	assert.False(t, wire.IsKind(err, wire.NotFound))
}

func TestFactoryRestoreReopensWalletAndReRegisters(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	info, agentDID, _, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	// A fresh factory sharing the same backing wallet stands in for a
	// process restart: the Agent struct itself is gone, only its
	// wallet record survives.
	f2 := NewFactory(r.w, r.rtr, r.conns)
	err = f2.Restore(context.Background(), info, owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)
	assert.Equal(t, 0, r.conns.created) // unchanged: RestoreAll doesn't call Create

	_, err = r.rtr.RouteA2A(context.Background(), agentDID, nil)
	assert.Error(t, err)
	assert.False(t, wire.IsKind(err, wire.NotFound))
}

func TestAgentHandleA2ADispatchesCreateKey(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	req := wire.CreateKey{ForDID: owner.DID, ForDIDVerKey: owner.VerKey}
	msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, owner.VerKey, agentVerKey, wire.MsgCreateKey, req)
	require.NoError(t, err)

	out, err := r.rtr.RouteA2A(context.Background(), agentDID, msg)
	require.NoError(t, err)

	_, env, _, err := wire.Unbundle(context.Background(), r.w, r.h, owner.VerKey, out)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgKeyCreated, env.Type)

	var created wire.KeyCreated
	require.NoError(t, wire.DecodeBody(env, &created))
	assert.Equal(t, "did:conn", created.WithPairwiseDID)
	assert.Equal(t, "vk:conn", created.WithPairwiseDIDVerKey)
	assert.Equal(t, 1, r.conns.created)
}

func TestAgentHandleA2ARejectsWrongSender(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)
	impostor := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, impostor.VerKey, agentVerKey, wire.MsgCreateKey, wire.CreateKey{})
	require.NoError(t, err)

	_, err = r.rtr.RouteA2A(context.Background(), agentDID, msg)
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.InvalidKey))
}

func TestAgentConfigRoundTrip(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	roundTrip := func(mt wire.MessageType, body any, dst any) {
		msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, owner.VerKey, agentVerKey, mt, body)
		require.NoError(t, err)
		out, err := r.rtr.RouteA2A(context.Background(), agentDID, msg)
		require.NoError(t, err)
		_, env, _, err := wire.Unbundle(context.Background(), r.w, r.h, owner.VerKey, out)
		require.NoError(t, err)
		require.NoError(t, wire.DecodeBody(env, dst))
	}

	var updated wire.ConfigsUpdated
	roundTrip(wire.MsgUpdateConfigs, wire.UpdateConfigs{Configs: []wire.ConfigItem{
		{Name: wire.ConfigName, Value: "Alice"},
		{Name: wire.ConfigLogoURL, Value: "https://example.test/logo.png"},
	}}, &updated)

	var got wire.Configs
	roundTrip(wire.MsgGetConfigs, wire.GetConfigs{}, &got)
	values := map[string]string{}
	for _, c := range got.Configs {
		values[c.Name] = c.Value
	}
	assert.Equal(t, "Alice", values[wire.ConfigName])
	assert.Equal(t, "https://example.test/logo.png", values[wire.ConfigLogoURL])

	var removed wire.ConfigsRemoved
	roundTrip(wire.MsgRemoveConfigs, wire.RemoveConfigs{Names: []string{wire.ConfigLogoURL}}, &removed)

	var after wire.Configs
	roundTrip(wire.MsgGetConfigs, wire.GetConfigs{}, &after)
	values = map[string]string{}
	for _, c := range after.Configs {
		values[c.Name] = c.Value
	}
	_, stillThere := values[wire.ConfigLogoURL]
	assert.False(t, stillThere)
	assert.Equal(t, "Alice", values[wire.ConfigName])
}

func TestAgentUpdateComMethodRejectsUnknownType(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, owner.VerKey, agentVerKey, wire.MsgUpdateComMethod, wire.UpdateComMethod{Type: "Carrier-Pigeon", Value: "x"})
	require.NoError(t, err)

	_, err = r.rtr.RouteA2A(context.Background(), agentDID, msg)
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.InvalidStructure))
}

func TestAgentGetMessagesByConnectionsEmptyWithoutConnections(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	// No pairwise connections exist yet: the fan-out should come back
	// with an empty, not erroring, response.
	msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, owner.VerKey, agentVerKey, wire.MsgGetMessagesByConnections, wire.GetMessagesByConnections{})
	require.NoError(t, err)

	out, err := r.rtr.RouteA2A(context.Background(), agentDID, msg)
	require.NoError(t, err)

	_, env, _, err := wire.Unbundle(context.Background(), r.w, r.h, owner.VerKey, out)
	require.NoError(t, err)
	var resp wire.MessagesByConnections
	require.NoError(t, wire.DecodeBody(env, &resp))
	assert.Empty(t, resp.ConnectionsMessages)
}

func TestAgentGetMessagesByConnectionsFailsWhenNoPairwiseMatches(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	req := wire.GetMessagesByConnections{PairwiseDIDs: []string{"did:no-such-connection"}}
	msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, owner.VerKey, agentVerKey, wire.MsgGetMessagesByConnections, req)
	require.NoError(t, err)

	_, err = r.rtr.RouteA2A(context.Background(), agentDID, msg)
	require.Error(t, err)
	assert.True(t, wire.IsKind(err, wire.NotFound))
}

func TestAgentUpdateMessageStatusByConnectionsReportsUnreachableAsFailed(t *testing.T) {
	r := newRig(t)
	owner := r.newOwner(t)

	_, agentDID, agentVerKey, err := r.f.Create(context.Background(), owner.DID, owner.VerKey, r.detail)
	require.NoError(t, err)

	req := wire.UpdateMessageStatusByConnections{
		UIDsByConn: map[string][]string{"did:no-such-connection": {"uid-1"}},
		StatusCode: wire.MSAccepted,
	}
	msg, err := wire.Bundle(context.Background(), r.w, r.h, wire.V2, owner.VerKey, agentVerKey, wire.MsgUpdateMessageStatusByConnections, req)
	require.NoError(t, err)

	out, err := r.rtr.RouteA2A(context.Background(), agentDID, msg)
	require.NoError(t, err)

	_, env, _, err := wire.Unbundle(context.Background(), r.w, r.h, owner.VerKey, out)
	require.NoError(t, err)
	var resp wire.MessageStatusUpdatedByConnections
	require.NoError(t, wire.DecodeBody(env, &resp))
	assert.Equal(t, []string{"uid-1"}, resp.FailedUIDsByConn["did:no-such-connection"])
	assert.Empty(t, resp.UpdatedUIDsByConn["did:no-such-connection"])
}
