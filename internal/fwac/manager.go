package fwac

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/lainio/err2"

	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// Manager owns every ForwardAgentConnection bootstrapped off one
// agency's wallet and satisfies forwardagent.ConnectionFactory.
// Grounded on ForwardAgentConnection::create/restore, which in the
// original are free functions rather than methods on a manager type
// only because Rust's actor registry (Router) plays that role; Go has
// no actor registry, so this type exists to hold what Router's
// add_a2a_route implicitly assumed a caller already knew.
type Manager struct {
	wallet walletapi.Wallet
	handle walletapi.Handle
	router *router.Router
	detail wire.ForwardAgentDetail
	agents AgentFactory
}

func NewManager(wallet walletapi.Wallet, handle walletapi.Handle, rtr *router.Router, detail wire.ForwardAgentDetail, agents AgentFactory) *Manager {
	return &Manager{wallet: wallet, handle: handle, router: rtr, detail: detail, agents: agents}
}

// Create stores the owner's DID, mints a fresh fwac DID/verkey pair,
// creates the pairwise record, registers the connection with the
// router, and returns its addressable DID/verkey -- create_connect in
// the original.
func (m *Manager) Create(ctx context.Context, ownerDID, ownerVerKey string) (did, verkey string, err error) {
	defer err2.Handle(&err)

	if _, lookupErr := m.wallet.GetPairwise(ctx, m.handle, ownerDID); lookupErr == nil {
		return "", "", wire.Errf(wire.Conflict, "fwac.Create", nil, "%s is already connected", ownerDID)
	} else if _, notFound := lookupErr.(*walletapi.ErrNotFound); !notFound {
		return "", "", lookupErr
	}

	if err := m.wallet.StoreTheirDID(ctx, m.handle, ownerDID, ownerVerKey); err != nil {
		return "", "", err
	}
	fwacDID, err := m.wallet.CreateAndStoreMyDID(ctx, m.handle, nil)
	if err != nil {
		return "", "", err
	}

	st := state{IsSignedUp: false}
	raw, err := json.Marshal(st)
	if err != nil {
		return "", "", err
	}
	if err := m.wallet.CreatePairwise(ctx, m.handle, ownerDID, fwacDID.DID, raw); err != nil {
		return "", "", err
	}

	conn := &Connection{
		wallet:      m.wallet,
		handle:      m.handle,
		ownerDID:    ownerDID,
		ownerVerKey: ownerVerKey,
		fwacDID:     fwacDID.DID,
		fwacVerKey:  fwacDID.VerKey,
		state:       st,
		detail:      m.detail,
		agents:      m.agents,
	}
	m.router.AddA2ARoute(fwacDID.DID, fwacDID.VerKey, conn)
	return fwacDID.DID, fwacDID.VerKey, nil
}

// RestoreAll lists every pairwise record in the wallet, rebuilds a
// Connection for each, registers it with the router, and restores its
// Agent if one was ever created.
func (m *Manager) RestoreAll(ctx context.Context) (err error) {
	defer err2.Handle(&err)

	records, err := m.wallet.ListPairwise(ctx, m.handle)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := m.restoreOne(ctx, rec); err != nil {
			glog.Errorf("fwac: restore %s: %v", rec.TheirDID, err)
			continue
		}
	}
	return nil
}

func (m *Manager) restoreOne(ctx context.Context, rec walletapi.PairwiseRecord) error {
	var st state
	if err := json.Unmarshal(rec.Metadata, &st); err != nil {
		return err
	}
	fwacVerKey, err := m.wallet.KeyForLocalDID(ctx, m.handle, rec.MyDID)
	if err != nil {
		return err
	}
	ownerVerKey, err := m.wallet.KeyForLocalDID(ctx, m.handle, rec.TheirDID)
	if err != nil {
		return err
	}

	conn := &Connection{
		wallet:      m.wallet,
		handle:      m.handle,
		ownerDID:    rec.TheirDID,
		ownerVerKey: ownerVerKey,
		fwacDID:     rec.MyDID,
		fwacVerKey:  fwacVerKey,
		state:       st,
		detail:      m.detail,
		agents:      m.agents,
	}
	m.router.AddA2ARoute(rec.MyDID, fwacVerKey, conn)

	if info := st.resolvedAgent(); info != nil {
		if err := m.agents.Restore(ctx, *info, rec.TheirDID, ownerVerKey, m.detail); err != nil {
			return err
		}
	}
	return nil
}
