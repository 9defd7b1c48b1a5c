// Package fwac implements the ForwardAgentConnection actor: the
// pairwise relationship between the agency and one not-yet-onboarded
// client, responsible for the SignUp/CreateAgent onboarding handshake.
package fwac

import (
	"context"
	"encoding/json"

	"github.com/lainio/err2"

	"github.com/vault-mesh/agency/internal/cryptutil"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// AgentWalletInfo records a previously bootstrapped Agent so it can be
// restored on the next boot.
type AgentWalletInfo struct {
	WalletID string `json:"walletId"`
	AgentDID string `json:"agentDid"`
	Directive cryptutil.KeyDerivationDirective `json:"kdfDirective"`
}

// legacyAgentWalletInfo is the 3-tuple shape older onboarding flows
// persisted (wallet_id, wallet_key, agent_did), promoted on read into
// AgentWalletInfo assuming Argon2iMod.
type legacyAgentWalletInfo [3]string

func promoteLegacy(legacy legacyAgentWalletInfo) AgentWalletInfo {
	return AgentWalletInfo{
		WalletID: legacy[0],
		AgentDID: legacy[2],
		Directive: cryptutil.KeyDerivationDirective{
			Method: cryptutil.KDFArgon2iMod,
			Key: legacy[1],
		},
	}
}

// state is the pairwise metadata persisted for this connection.
type state struct {
	IsSignedUp bool `json:"isSignedUp"`
	Legacy *legacyAgentWalletInfo `json:"agent,omitempty"`
	Agent *AgentWalletInfo `json:"agentV2,omitempty"`
}

func (s *state) resolvedAgent() *AgentWalletInfo {
	if s.Agent != nil {
		return s.Agent
	}
	if s.Legacy != nil {
		promoted := promoteLegacy(*s.Legacy)
		return &promoted
	}
	return nil
}

// AgentFactory creates or restores the Agent actor bootstrapped off
// one ForwardAgentConnection. Satisfied by internal/agent.
type AgentFactory interface {
	Create(ctx context.Context, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail) (info AgentWalletInfo, agentDID, agentVerKey string, err error)
	Restore(ctx context.Context, info AgentWalletInfo, ownerDID, ownerVerKey string, detail wire.ForwardAgentDetail) error
}

// Connection is one ForwardAgentConnection actor instance.
type Connection struct {
	wallet walletapi.Wallet
	handle walletapi.Handle // the agency's own wallet handle; fwac DIDs live in it

	ownerDID string
	ownerVerKey string
	fwacDID string
	fwacVerKey string

	state state
	detail wire.ForwardAgentDetail
	agents AgentFactory
}

func (c *Connection) saveState(ctx context.Context) error {
	raw, err := json.Marshal(c.state)
	if err != nil {
		return err
	}
	return c.wallet.SetPairwiseMetadata(ctx, c.handle, c.ownerDID, raw)
}

// HandleA2A implements router.A2AHandler: msg is authcrypted between
// the owner's verkey and this connection's fwac verkey.
func (c *Connection) HandleA2A(ctx context.Context, msg []byte) (out []byte, err error) {
	defer err2.Handle(&err)

	senderVK, env, v, err := wire.Unbundle(ctx, c.wallet, c.handle, c.fwacVerKey, msg)
	if err != nil {
		return nil, err
	}
	if senderVK != c.ownerVerKey {
		return nil, wire.Errf(wire.InvalidKey, "fwac.HandleA2A", nil, "inconsistent sender and connection pairwise verkeys")
	}

	switch env.Type {
	case wire.MsgSignUp:
		if err := c.signUp(ctx); err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, c.wallet, c.handle, v, c.fwacVerKey, c.ownerVerKey, wire.MsgSignedUp, wire.SignedUp{})

	case wire.MsgCreateAgent:
		agentDID, agentVerKey, err := c.createAgent(ctx)
		if err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, c.wallet, c.handle, v, c.fwacVerKey, c.ownerVerKey, wire.MsgAgentCreated, wire.AgentCreated{
			WithPairwiseDID: agentDID,
			WithPairwiseDIDVerKey: agentVerKey,
		})

	default:
		return nil, wire.Errf(wire.InvalidStructure, "fwac.HandleA2A", nil, "unsupported message type %s", env.Type)
	}
}

func (c *Connection) signUp(ctx context.Context) error {
	if c.state.IsSignedUp {
		return wire.Errf(wire.Conflict, "fwac.signUp", nil, "already signed up")
	}
	c.state.IsSignedUp = true
	return c.saveState(ctx)
}

func (c *Connection) createAgent(ctx context.Context) (agentDID, agentVerKey string, err error) {
	if !c.state.IsSignedUp {
		return "", "", wire.Errf(wire.Conflict, "fwac.createAgent", nil, "sign up is required")
	}
	if c.state.resolvedAgent() != nil {
		return "", "", wire.Errf(wire.Conflict, "fwac.createAgent", nil, "agent already created")
	}
	info, did, verkey, err := c.agents.Create(ctx, c.ownerDID, c.ownerVerKey, c.detail)
	if err != nil {
		return "", "", err
	}
	c.state.Agent = &info
	if err := c.saveState(ctx); err != nil {
		return "", "", err
	}
	return did, verkey, nil
}
