// Package forwardagent implements the ForwardAgent actor: the single
// entry point for every message arriving at this agency, addressed by
// the agency's own DID/verkey. It unwraps the outermost onion layer
// (anoncrypted to the agency) and either dispatches a Forward envelope
// into the Router or handles a Connect request by bootstrapping a new
// ForwardAgentConnection.
package forwardagent

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/lainio/err2"

	"github.com/vault-mesh/agency/internal/cryptutil"
	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// Config is the boot-time configuration for the agency's own identity.
type Config struct {
	WalletID string
	DIDSeed []byte // 32 bytes, or nil for a freshly generated identity
	Endpoint string
	RestoreOnDemand bool
}

// ConnectionFactory creates or restores ForwardAgentConnections. It is
// satisfied by internal/fwac; kept as an interface here so this
// package never imports fwac's concrete type, keeping the dependency
// one-directional (ForwardAgent depends on the connection abstraction,
// not the other way around).
type ConnectionFactory interface {
	Create(ctx context.Context, ownerDID, ownerVerKey string) (did, verkey string, err error)
	RestoreAll(ctx context.Context) error
}

// ForwardAgent is the agency's single well-known identity.
type ForwardAgent struct {
	wallet walletapi.Wallet
	handle walletapi.Handle

	did string
	verkey string
	detail wire.ForwardAgentDetail

	router *router.Router
	conns ConnectionFactory
}

// Boot creates (if necessary) and opens the forward agent's wallet,
// ensures its DID exists, registers it with router, and restores
// existing connections unless cfg.RestoreOnDemand.
func Boot(ctx context.Context, wallet walletapi.Wallet, cfg Config, rtr *router.Router, connsFactory func(wallet walletapi.Wallet, handle walletapi.Handle, detail wire.ForwardAgentDetail) ConnectionFactory) (fa *ForwardAgent, err error) {
	defer err2.Handle(&err)

	walletCfg := walletapi.Config{ID: cfg.WalletID}
	creds := walletapi.Credentials{}
	if createErr := wallet.Create(ctx, walletCfg, creds); createErr != nil {
		if _, ok := createErr.(*walletapi.ErrAlreadyExists); !ok {
			return nil, fmt.Errorf("forwardagent: create wallet: %w", createErr)
		}
	}
	handle, err := wallet.Open(ctx, walletCfg, creds)
	if err != nil {
		return nil, fmt.Errorf("forwardagent: open wallet: %w", err)
	}

	did, err := ensureDID(ctx, wallet, handle, cfg.DIDSeed)
	if err != nil {
		return nil, err
	}

	fa = &ForwardAgent{
		wallet: wallet,
		handle: handle,
		did: did.DID,
		verkey: did.VerKey,
		detail: wire.ForwardAgentDetail{DID: did.DID, VerKey: did.VerKey, Endpoint: cfg.Endpoint},
		router: rtr,
	}
	fa.conns = connsFactory(fa.wallet, fa.handle, fa.detail)

	rtr.AddA2ARoute(fa.did, fa.verkey, fa)

	if !cfg.RestoreOnDemand {
		glog.Info("forwardagent: restoring connections")
		if err := fa.conns.RestoreAll(ctx); err != nil {
			return nil, fmt.Errorf("forwardagent: restore connections: %w", err)
		}
	} else {
		glog.Info("forwardagent: restoring connections on demand")
	}

	return fa, nil
}

func ensureDID(ctx context.Context, w walletapi.Wallet, h walletapi.Handle, seed []byte) (walletapi.DID, error) {
	did, err := w.CreateAndStoreMyDID(ctx, h, seed)
	if err == nil {
		return did, nil
	}
	if _, ok := err.(*walletapi.ErrAlreadyExists); !ok {
		return walletapi.DID{}, err
	}
	kp, kerr := cryptutil.GenerateKeyPair(seed)
	if kerr != nil {
		return walletapi.DID{}, kerr
	}
	docDID := cryptutil.DID(kp.Public)
	verkey, kerr := w.KeyForLocalDID(ctx, h, docDID)
	if kerr != nil {
		return walletapi.DID{}, kerr
	}
	return walletapi.DID{DID: docDID, VerKey: verkey}, nil
}

// Detail exposes the agency's own addressable identity, used when
// constructing invitations and when passing detail down to
// ForwardAgentConnection and Agent on creation.
func (fa *ForwardAgent) Detail() wire.ForwardAgentDetail { return fa.detail }

// HandleA2A implements router.A2AHandler: msg is anoncrypted to this
// agent's verkey and is either a Forward envelope (route onward) or an
// authcrypted Connect request (bootstrap a new connection).
func (fa *ForwardAgent) HandleA2A(ctx context.Context, msg []byte) (out []byte, err error) {
	defer err2.Handle(&err)

	plaintext, err := fa.wallet.AnonDecrypt(ctx, fa.handle, fa.verkey, msg)
	if err == nil {
		if fwd, ok, ferr := wire.ParseForward(plaintext); ferr == nil && ok {
			return fa.router.RouteA2A(ctx, fwd.To, fwd.Msg)
		}
	}

	// Not a Forward: must be an authcrypted onboarding request.
	senderVK, env, v, err := wire.Unbundle(ctx, fa.wallet, fa.handle, fa.verkey, msg)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case wire.MsgConnect:
		var connect wire.Connect
		if err := wire.DecodeBody(env, &connect); err != nil {
			return nil, err
		}
		return fa.handleConnect(ctx, v, senderVK, connect)
	default:
		return nil, wire.Errf(wire.InvalidStructure, "forwardagent.HandleA2A", nil, "unsupported message type %s", env.Type)
	}
}

func (fa *ForwardAgent) handleConnect(ctx context.Context, v wire.ProtocolVersion, senderVK string, msg wire.Connect) ([]byte, error) {
	if msg.FromDIDVerKey != senderVK {
		return nil, wire.Errf(wire.InvalidKey, "forwardagent.handleConnect", nil, "inconsistent sender and connection verkeys")
	}
	did, verkey, err := fa.conns.Create(ctx, msg.FromDID, msg.FromDIDVerKey)
	if err != nil {
		return nil, err
	}
	return wire.Bundle(ctx, fa.wallet, fa.handle, v, fa.verkey, senderVK, wire.MsgConnected, wire.Connected{
		WithPairwiseDID: did,
		WithPairwiseDIDVerKey: verkey,
	})
}
