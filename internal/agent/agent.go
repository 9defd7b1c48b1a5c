// Package agent implements the Agent actor: the per-client identity an
// owner receives after CreateAgent, responsible for minting new
// pairwise connections (CreateKey), holding the owner's configuration
// (UpdateConfigs/GetConfigs/RemoveConfigs, UpdateComMethod), and
// fanning requests out across every AgentConnection it owns. The Agent
// owns its own wallet, separate from the agency's, and every
// AgentConnection it creates is a pairwise record inside that wallet.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/mr-tron/base58"

	"github.com/vault-mesh/agency/internal/cryptutil"
	"github.com/vault-mesh/agency/internal/fwac"
	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// ConnFactory creates or restores AgentConnections owned by one Agent.
// Satisfied by internal/agentconn.
type ConnFactory interface {
	Create(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail, req wire.CreateKey) (connDID, connVerKey string, err error)
	RestoreAll(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail) error
}

// configSet is the metadata blob persisted under the agent's own DID:
// name/logoUrl/notificationWebhookUrl plus the optional webhook
// com-method.
type configSet struct {
	Values map[string]string `json:"values"`
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// Agent is one client's cloud identity, addressed by its own DID/verkey.
type Agent struct {
	wallet walletapi.Wallet
	handle walletapi.Handle

	did string
	verkey string

	ownerDID string
	ownerVerKey string

	detail wire.ForwardAgentDetail // the agency's own forward-agent detail, handed to every AgentConnection this agent creates

	router *router.Router
	conns ConnFactory
}

// Factory mints and restores Agents off the agency's own wallet
// reference, satisfying fwac.AgentFactory. It does not hold onto the
// wallet.Wallet handle for each agent it creates once construction
// returns: each Agent is self-sufficient and owns its own handle.
type Factory struct {
	wallet walletapi.Wallet
	router *router.Router
	conns ConnFactory
}

func NewFactory(wallet walletapi.Wallet, rtr *router.Router, conns ConnFactory) *Factory {
	return &Factory{wallet: wallet, router: rtr, conns: conns}
}

// Create mints a fresh wallet for a new Agent, creates its DID, and
// registers it with the router. The returned AgentWalletInfo is the
// record fwac persists so this agent can be restored later.
func (f *Factory) Create(ctx context.Context, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail) (info fwac.AgentWalletInfo, agentDID, agentVerKey string, err error) {
	defer err2.Handle(&err)

	suffix, err := randSuffix()
	if err != nil {
		return fwac.AgentWalletInfo{}, "", "", err
	}
	walletID := fmt.Sprintf("agent-%s-%s", ownerDID, suffix)
	directive, err := cryptutil.NewKeyDerivationDirective(cryptutil.KDFArgon2iMod)
	if err != nil {
		return fwac.AgentWalletInfo{}, "", "", err
	}

	a, err := bootWallet(ctx, f.wallet, walletID, directive, ownerDID, ownerVerKey, detail, f.router, f.conns)
	if err != nil {
		return fwac.AgentWalletInfo{}, "", "", err
	}

	info = fwac.AgentWalletInfo{WalletID: walletID, AgentDID: a.did, Directive: directive}
	return info, a.did, a.verkey, nil
}

// Restore reopens a previously created Agent's wallet and re-registers
// it with the router, then restores every AgentConnection inside it.
func (f *Factory) Restore(ctx context.Context, info fwac.AgentWalletInfo, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail) (err error) {
	defer err2.Handle(&err)

	cfg := walletapi.Config{ID: info.WalletID}
	creds := walletapi.Credentials{Directive: info.Directive}
	handle, err := f.wallet.Open(ctx, cfg, creds)
	if err != nil {
		return fmt.Errorf("agent: open wallet %s: %w", info.WalletID, err)
	}
	verkey, err := f.wallet.KeyForLocalDID(ctx, handle, info.AgentDID)
	if err != nil {
		return fmt.Errorf("agent: resolve did %s: %w", info.AgentDID, err)
	}

	a := &Agent{
		wallet: f.wallet,
		handle: handle,
		did: info.AgentDID,
		verkey: verkey,
		ownerDID: ownerDID,
		ownerVerKey: ownerVerKey,
		detail: detail,
		router: f.router,
		conns: f.conns,
	}
	f.router.AddA2ARoute(a.did, a.verkey, a)

	agentDetail := wire.AgentDetail{DID: a.did, VerKey: a.verkey}
	return f.conns.RestoreAll(ctx, a.wallet, a.handle, agentDetail, detail)
}

func bootWallet(ctx context.Context, w walletapi.Wallet, walletID string, directive cryptutil.KeyDerivationDirective, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail, rtr *router.Router, conns ConnFactory) (*Agent, error) {
	cfg := walletapi.Config{ID: walletID}
	creds := walletapi.Credentials{Directive: directive}
	if err := w.Create(ctx, cfg, creds); err != nil {
		return nil, fmt.Errorf("agent: create wallet: %w", err)
	}
	handle, err := w.Open(ctx, cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("agent: open wallet: %w", err)
	}
	if err := w.StoreTheirDID(ctx, handle, ownerDID, ownerVerKey); err != nil {
		return nil, err
	}
	did, err := w.CreateAndStoreMyDID(ctx, handle, nil)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		wallet: w,
		handle: handle,
		did: did.DID,
		verkey: did.VerKey,
		ownerDID: ownerDID,
		ownerVerKey: ownerVerKey,
		detail: detail,
		router: rtr,
		conns: conns,
	}
	rtr.AddA2ARoute(a.did, a.verkey, a)
	return a, nil
}

func randSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base58.Encode(b[:]), nil
}

// HandleA2A implements router.A2AHandler: msg is authcrypted between the
// owner's client-agent pairwise verkey and this agent's own verkey.
func (a *Agent) HandleA2A(ctx context.Context, msg []byte) (out []byte, err error) {
	defer err2.Handle(&err)

	senderVK, env, v, err := wire.Unbundle(ctx, a.wallet, a.handle, a.verkey, msg)
	if err != nil {
		return nil, err
	}
	if senderVK != a.ownerVerKey {
		return nil, wire.Errf(wire.InvalidKey, "agent.HandleA2A", nil, "inconsistent sender and client-agent pairwise verkeys")
	}

	switch env.Type {
	case wire.MsgCreateKey:
		var req wire.CreateKey
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		resp, err := a.createKey(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgKeyCreated, resp)

	case wire.MsgUpdateConfigs:
		var req wire.UpdateConfigs
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		if err := a.updateConfigs(ctx, req); err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgConfigsUpdated, wire.ConfigsUpdated{})

	case wire.MsgGetConfigs:
		var req wire.GetConfigs
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		resp, err := a.getConfigs(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgConfigs, resp)

	case wire.MsgRemoveConfigs:
		var req wire.RemoveConfigs
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		if err := a.removeConfigs(ctx, req); err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgConfigsRemoved, wire.ConfigsRemoved{})

	case wire.MsgUpdateComMethod:
		var req wire.UpdateComMethod
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		if err := a.updateComMethod(ctx, req); err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgComMethodUpdated, wire.ComMethodUpdated{})

	case wire.MsgGetMessagesByConnections:
		var req wire.GetMessagesByConnections
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		resp, err := a.getMessagesByConnections(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgMessagesByConnections, resp)

	case wire.MsgUpdateMessageStatusByConnections:
		var req wire.UpdateMessageStatusByConnections
		if err := wire.DecodeBody(env, &req); err != nil {
			return nil, err
		}
		resp, err := a.updateMessageStatusByConnections(ctx, req)
		if err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, a.wallet, a.handle, v, a.verkey, senderVK, wire.MsgMessageStatusUpdatedByConns, resp)

	default:
		return nil, wire.Errf(wire.InvalidStructure, "agent.HandleA2A", nil, "unsupported message type %s", env.Type)
	}
}

func (a *Agent) createKey(ctx context.Context, req wire.CreateKey) (wire.KeyCreated, error) {
	agentDetail := wire.AgentDetail{DID: a.did, VerKey: a.verkey}
	connDID, connVerKey, err := a.conns.Create(ctx, a.wallet, a.handle, agentDetail, a.detail, req)
	if err != nil {
		return wire.KeyCreated{}, err
	}
	return wire.KeyCreated{WithPairwiseDID: connDID, WithPairwiseDIDVerKey: connVerKey}, nil
}

func (a *Agent) loadConfig(ctx context.Context) (configSet, error) {
	raw, err := a.wallet.GetDIDMetadata(ctx, a.handle, a.did)
	if err != nil {
		if _, ok := err.(*walletapi.ErrNotFound); ok {
			return configSet{Values: map[string]string{}}, nil
		}
		return configSet{}, err
	}
	if len(raw) == 0 {
		return configSet{Values: map[string]string{}}, nil
	}
	var cs configSet
	if err := json.Unmarshal(raw, &cs); err != nil {
		return configSet{}, wire.Errf(wire.Storage, "agent.loadConfig", err, "decode config metadata")
	}
	if cs.Values == nil {
		cs.Values = map[string]string{}
	}
	return cs, nil
}

func (a *Agent) saveConfig(ctx context.Context, cs configSet) error {
	raw, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return a.wallet.SetDIDMetadata(ctx, a.handle, a.did, raw)
}

func (a *Agent) updateConfigs(ctx context.Context, req wire.UpdateConfigs) error {
	cs, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	for _, item := range req.Configs {
		switch item.Name {
		case wire.ConfigName, wire.ConfigLogoURL, wire.ConfigNotificationWebhookURL:
			cs.Values[item.Name] = item.Value
		}
	}
	return a.saveConfig(ctx, cs)
}

func (a *Agent) getConfigs(ctx context.Context, req wire.GetConfigs) (wire.Configs, error) {
	cs, err := a.loadConfig(ctx)
	if err != nil {
		return wire.Configs{}, err
	}
	names := req.Names
	if len(names) == 0 {
		for name := range cs.Values {
			names = append(names, name)
		}
	}
	resp := wire.Configs{}
	for _, name := range names {
		if v, ok := cs.Values[name]; ok {
			resp.Configs = append(resp.Configs, wire.ConfigItem{Name: name, Value: v})
		}
	}
	return resp, nil
}

func (a *Agent) removeConfigs(ctx context.Context, req wire.RemoveConfigs) error {
	cs, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	for _, name := range req.Names {
		delete(cs.Values, name)
	}
	return a.saveConfig(ctx, cs)
}

func (a *Agent) updateComMethod(ctx context.Context, req wire.UpdateComMethod) error {
	if req.Type != wire.ComMethodWebhook {
		return wire.Errf(wire.InvalidStructure, "agent.updateComMethod", nil, "unsupported com-method type %s", req.Type)
	}
	cs, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	cs.WebhookURL = req.Value
	return a.saveConfig(ctx, cs)
}

func (a *Agent) getMessagesByConnections(ctx context.Context, req wire.GetMessagesByConnections) (wire.MessagesByConnections, error) {
	records, err := a.wallet.ListPairwise(ctx, a.handle)
	if err != nil {
		return wire.MessagesByConnections{}, err
	}
	wanted := toSet(req.PairwiseDIDs)
	if len(wanted) > 0 {
		matched := false
		for _, rec := range records {
			if wanted[rec.MyDID] {
				matched = true
				break
			}
		}
		if !matched {
			return wire.MessagesByConnections{}, wire.Errf(wire.NotFound, "agent.getMessagesByConnections", nil, "no pairwise connection found for requested DIDs")
		}
	}
	inner := wire.GetMessages{ExcludePayload: req.ExcludePayload, UIDs: req.UIDs, StatusCodes: req.StatusCodes}

	resp := wire.MessagesByConnections{}
	for _, rec := range records {
		if len(wanted) > 0 && !wanted[rec.MyDID] {
			continue
		}
		connResp, err := a.router.RouteA2Conn(ctx, rec.MyDID, wire.ConnRequest{Op: wire.MsgGetMessages, GetMessages: &inner})
		if err != nil {
			glog.Warningf("agent: get messages for connection %s: %v", rec.MyDID, err)
			continue
		}
		if connResp.Messages == nil {
			continue
		}
		resp.ConnectionsMessages = append(resp.ConnectionsMessages, wire.ConnectionMessages{
			PairwiseDID: rec.MyDID,
			Messages: connResp.Messages.Messages,
		})
	}
	return resp, nil
}

func (a *Agent) updateMessageStatusByConnections(ctx context.Context, req wire.UpdateMessageStatusByConnections) (wire.MessageStatusUpdatedByConnections, error) {
	resp := wire.MessageStatusUpdatedByConnections{
		UpdatedUIDsByConn: map[string][]string{},
		FailedUIDsByConn: map[string][]string{},
	}
	for connDID, uids := range req.UIDsByConn {
		inner := wire.UpdateMessages{UIDs: uids, StatusCode: req.StatusCode}
		connResp, err := a.router.RouteA2Conn(ctx, connDID, wire.ConnRequest{Op: wire.MsgUpdateMessageStatus, UpdateMessages: &inner})
		if err != nil {
			glog.Warningf("agent: update message status for connection %s: %v", connDID, err)
			resp.FailedUIDsByConn[connDID] = uids
			continue
		}
		if connResp.MessageStatusUpdated == nil {
			continue
		}
		resp.UpdatedUIDsByConn[connDID] = connResp.MessageStatusUpdated.UpdatedUIDs
		if len(connResp.MessageStatusUpdated.FailedUIDs) > 0 {
			resp.FailedUIDsByConn[connDID] = connResp.MessageStatusUpdated.FailedUIDs
		}
	}
	return resp, nil
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
