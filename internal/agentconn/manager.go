package agentconn

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/lainio/err2"

	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// Manager mints and restores AgentConnections and satisfies
// agent.ConnFactory. It holds only the router and notifier since every
// other piece of state (wallet, handle, agent/agency identity) is
// scoped to the owning Agent and passed in per call.
type Manager struct {
	router   *router.Router
	notifier Notifier
}

func NewManager(rtr *router.Router, notifier Notifier) *Manager {
	return &Manager{router: rtr, notifier: notifier}
}

// Create mints a fresh connection DID inside the owning Agent's
// wallet, optionally pre-populating the counterparty when the owner is
// answering an existing invitation, and registers both dispatch paths
// with the router.
func (m *Manager) Create(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail, req wire.CreateKey) (connDID, connVerKey string, err error) {
	defer err2.Handle(&err)

	if _, lookupErr := wallet.GetPairwise(ctx, handle, req.ForDID); lookupErr == nil {
		return "", "", wire.Errf(wire.Conflict, "agentconn.Create", nil, "pairwise already exists for %s", req.ForDID)
	} else if _, notFound := lookupErr.(*walletapi.ErrNotFound); !notFound {
		return "", "", lookupErr
	}

	if err := wallet.StoreTheirDID(ctx, handle, req.ForDID, req.ForDIDVerKey); err != nil {
		return "", "", err
	}
	did, err := wallet.CreateAndStoreMyDID(ctx, handle, nil)
	if err != nil {
		return "", "", err
	}

	st := connState{Status: wire.ConnPending, Messages: map[string]wire.InternalMessage{}}
	if req.TargetDID != "" {
		st.Remote = remote{Agency: req.TargetAgency, DID: req.TargetDID, VerKey: req.TargetVerKey}
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return "", "", err
	}
	if err := wallet.CreatePairwise(ctx, handle, req.ForDID, did.DID, raw); err != nil {
		return "", "", err
	}

	conn := &Connection{
		wallet:       wallet,
		handle:       handle,
		ownerDID:     req.ForDID,
		ownerVerKey:  req.ForDIDVerKey,
		connDID:      did.DID,
		connVerKey:   did.VerKey,
		agentDetail:  agentDetail,
		agencyDetail: agencyDetail,
		router:       m.router,
		notifier:     m.notifier,
		state:        st,
	}
	m.router.AddA2ARoute(did.DID, did.VerKey, conn)
	m.router.AddA2ConnRoute(did.DID, did.VerKey, conn)
	return did.DID, did.VerKey, nil
}

// RestoreAll lists every pairwise record in the owning Agent's wallet
// and rebuilds an AgentConnection for each.
func (m *Manager) RestoreAll(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail) (err error) {
	defer err2.Handle(&err)

	records, err := wallet.ListPairwise(ctx, handle)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := m.restoreOne(ctx, wallet, handle, agentDetail, agencyDetail, rec); err != nil {
			glog.Errorf("agentconn: restore %s: %v", rec.MyDID, err)
			continue
		}
	}
	return nil
}

func (m *Manager) restoreOne(ctx context.Context, wallet walletapi.Wallet, handle walletapi.Handle, agentDetail wire.AgentDetail, agencyDetail wire.ForwardAgentDetail, rec walletapi.PairwiseRecord) error {
	var st connState
	if err := json.Unmarshal(rec.Metadata, &st); err != nil {
		return err
	}
	connVerKey, err := wallet.KeyForLocalDID(ctx, handle, rec.MyDID)
	if err != nil {
		return err
	}
	ownerVerKey, err := wallet.KeyForLocalDID(ctx, handle, rec.TheirDID)
	if err != nil {
		return err
	}

	conn := &Connection{
		wallet:       wallet,
		handle:       handle,
		ownerDID:     rec.TheirDID,
		ownerVerKey:  ownerVerKey,
		connDID:      rec.MyDID,
		connVerKey:   connVerKey,
		agentDetail:  agentDetail,
		agencyDetail: agencyDetail,
		router:       m.router,
		notifier:     m.notifier,
		state:        st,
	}
	m.router.AddA2ARoute(rec.MyDID, connVerKey, conn)
	m.router.AddA2ConnRoute(rec.MyDID, connVerKey, conn)
	return nil
}
