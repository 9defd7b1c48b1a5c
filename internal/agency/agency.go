// Package agency wires every actor package into one bootable agency
// instance and exposes the single entry point an external front door
// calls: HandleIncoming. Boot order is Wallet -> Requester -> Router ->
// ForwardAgent, each depending only on the layer below it.
package agency

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/vault-mesh/agency/internal/agent"
	"github.com/vault-mesh/agency/internal/agentconn"
	"github.com/vault-mesh/agency/internal/config"
	"github.com/vault-mesh/agency/internal/forwardagent"
	"github.com/vault-mesh/agency/internal/fwac"
	"github.com/vault-mesh/agency/internal/memwallet"
	"github.com/vault-mesh/agency/internal/notify"
	"github.com/vault-mesh/agency/internal/requester"
	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// Agency is one running instance of the cloud-mediator core.
type Agency struct {
	wallet walletapi.Wallet
	router *router.Router
	fa *forwardagent.ForwardAgent
}

// Boot constructs the full dependency graph and restores every
// previously onboarded client unless RestoreOnDemand is set.
func Boot(ctx context.Context, cfg config.Config) (*Agency, error) {
	wallet := memwallet.New(cfg.WalletBaseDir)

	req := requester.New(requester.Config{
		MaxRetries: cfg.MaxRetries,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		BreakerTimeout: time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
	})
	rtr := router.New(req)
	notifier := notify.New(5 * time.Second)

	connMgr := agentconn.NewManager(rtr, notifier)
	agentFactory := agent.NewFactory(wallet, rtr, connMgr)

	faCfg := forwardagent.Config{
		WalletID: cfg.WalletID,
		DIDSeed: cfg.DIDSeed,
		Endpoint: cfg.Endpoint,
		RestoreOnDemand: cfg.RestoreOnDemand,
	}
	fa, err := forwardagent.Boot(ctx, wallet, faCfg, rtr, func(w walletapi.Wallet, h walletapi.Handle, detail wire.ForwardAgentDetail) forwardagent.ConnectionFactory {
		return fwac.NewManager(w, h, rtr, detail, agentFactory)
	})
	if err != nil {
		return nil, err
	}

	glog.Infof("agency: booted, did=%s endpoint=%s", fa.Detail().DID, cfg.Endpoint)
	return &Agency{wallet: wallet, router: rtr, fa: fa}, nil
}

// HandleIncoming is the single entry point an external front door
// calls with the raw ciphertext bytes posted to this agency's public
// endpoint.
func (a *Agency) HandleIncoming(ctx context.Context, msg []byte) ([]byte, error) {
	return a.fa.HandleA2A(ctx, msg)
}
