// Package agentconn implements the AgentConnection actor: one pairwise
// relationship owned by an Agent, responsible for the
// connection-request handshake (ConnReq/ConnReqAnswer/ConnReqRedirect),
// general message exchange, and the status lifecycle of every
// InternalMessage it stores.
//
// Both halves of the handshake are the same actor type here: the party
// who mints an invitation and the party who answers it each run their
// own AgentConnection, addressed by their own DID/verkey, and learn
// the counterparty's address either up front (answering an invite
// already names the other side) or on first contact (ConnReqAnswer
// arriving over the wire names the answerer).
package agentconn

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/lainio/err2"

	"github.com/vault-mesh/agency/internal/router"
	"github.com/vault-mesh/agency/internal/walletapi"
	"github.com/vault-mesh/agency/internal/wire"
)

// Notifier fires a webhook when an InternalMessage is created or
// changes status, if the owning agent has configured one. Satisfied by
// internal/notify.
type Notifier interface {
	Notify(ctx context.Context, url string, n wire.MessageNotification) error
}

// remote is what this connection knows about its counterparty, set
// either at creation (answering an invite) or on first ConnReqAnswer
// (having minted one).
type remote struct {
	Agency *wire.ForwardAgentDetail `json:"agency,omitempty"`
	DID string `json:"did,omitempty"`
	VerKey string `json:"verKey,omitempty"`
}

func (r remote) known() bool { return r.DID != "" && r.VerKey != "" }

// connState is the pairwise metadata persisted for one AgentConnection.
type connState struct {
	Status wire.ConnectionStatus `json:"status"`
	Remote remote `json:"remote"`
	RedirectDetail *wire.RedirectDetail `json:"redirectDetail,omitempty"`
	Messages map[string]wire.InternalMessage `json:"messages"`
	Order []string `json:"order"`
}

// Connection is one AgentConnection actor instance.
type Connection struct {
	wallet walletapi.Wallet
	handle walletapi.Handle // the owning Agent's own wallet handle; this connection's DID lives in it

	ownerDID string // owner's pairwise DID for this specific connection
	ownerVerKey string

	connDID string
	connVerKey string

	agentDetail wire.AgentDetail
	agencyDetail wire.ForwardAgentDetail

	router *router.Router
	notifier Notifier

	state connState
}

func (c *Connection) saveState(ctx context.Context) error {
	raw, err := json.Marshal(c.state)
	if err != nil {
		return err
	}
	return c.wallet.SetPairwiseMetadata(ctx, c.handle, c.ownerDID, raw)
}

// HandleA2Conn implements router.A2ConnHandler: the owner path, taken
// in-process from whoever calls Router.RouteA2Conn. The owning Agent
// authenticates and routes GetMessages and UpdateMessageStatus here;
// no wire handler in this module routes CreateMessage or
// SendRemoteMessage here.
func (c *Connection) HandleA2Conn(ctx context.Context, req wire.ConnRequest) (resp wire.ConnResponse, err error) {
	defer err2.Handle(&err)

	switch req.Op {
	case wire.MsgCreateMessage:
		if req.CreateMessage == nil {
			return wire.ConnResponse{}, wire.Errf(wire.InvalidStructure, "agentconn.HandleA2Conn", nil, "missing CreateMessage body")
		}
		mc, err := c.createMessage(ctx, *req.CreateMessage, roleOwner)
		if err != nil {
			return wire.ConnResponse{}, err
		}
		return wire.ConnResponse{Op: req.Op, MessageCreated: &mc}, nil

	case wire.MsgSendRemoteMessage:
		if req.SendRemoteMessage == nil {
			return wire.ConnResponse{}, wire.Errf(wire.InvalidStructure, "agentconn.HandleA2Conn", nil, "missing SendRemoteMessage body")
		}
		mc, err := c.sendRemoteMessage(ctx, *req.SendRemoteMessage)
		if err != nil {
			return wire.ConnResponse{}, err
		}
		return wire.ConnResponse{Op: req.Op, MessageCreated: &mc}, nil

	case wire.MsgGetMessages:
		if req.GetMessages == nil {
			return wire.ConnResponse{}, wire.Errf(wire.InvalidStructure, "agentconn.HandleA2Conn", nil, "missing GetMessages body")
		}
		m := c.getMessages(*req.GetMessages)
		return wire.ConnResponse{Op: req.Op, Messages: &m}, nil

	case wire.MsgUpdateMessageStatus:
		if req.UpdateMessages == nil {
			return wire.ConnResponse{}, wire.Errf(wire.InvalidStructure, "agentconn.HandleA2Conn", nil, "missing UpdateMessages body")
		}
		u, err := c.updateMessages(ctx, *req.UpdateMessages)
		if err != nil {
			return wire.ConnResponse{}, err
		}
		return wire.ConnResponse{Op: req.Op, MessageStatusUpdated: &u}, nil

	default:
		return wire.ConnResponse{}, wire.Errf(wire.InvalidStructure, "agentconn.HandleA2Conn", nil, "unsupported op %s", req.Op)
	}
}

// HandleA2A implements router.A2AHandler: msg is authcrypted between
// this connection's own verkey and the remote party's connection
// verkey (onion-unwrapped by the agency's own ForwardAgent before
// reaching here).
func (c *Connection) HandleA2A(ctx context.Context, msg []byte) (out []byte, err error) {
	defer err2.Handle(&err)

	senderVK, env, v, err := wire.Unbundle(ctx, c.wallet, c.handle, c.connVerKey, msg)
	if err != nil {
		return nil, err
	}
	if c.state.Remote.known() && senderVK != c.state.Remote.VerKey {
		return nil, wire.Errf(wire.InvalidKey, "agentconn.HandleA2A", nil, "inconsistent sender and connection verkeys")
	}

	switch env.Type {
	case wire.MsgConnectionRequestAnswer:
		var detail wire.ConnectionRequestAnswerMessageDetail
		if err := wire.DecodeBody(env, &detail); err != nil {
			return nil, err
		}
		if err := c.receiveConnReqAnswer(ctx, senderVK, detail); err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, c.wallet, c.handle, v, c.connVerKey, senderVK, wire.MsgConnectionRequestAnswerResponse, struct{}{})

	case wire.MsgConnectionRequestRedirect:
		var detail wire.ConnectionRequestRedirectMessageDetail
		if err := wire.DecodeBody(env, &detail); err != nil {
			return nil, err
		}
		if err := c.receiveConnReqRedirect(ctx, senderVK, detail); err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, c.wallet, c.handle, v, c.connVerKey, senderVK, wire.MsgConnectionRequestRedirectResp, struct{}{})

	case wire.MsgCreateMessage:
		var relayed wire.CreateMessage
		if err := wire.DecodeBody(env, &relayed); err != nil {
			return nil, err
		}
		mc, err := c.receiveGeneralMessage(ctx, senderVK, relayed)
		if err != nil {
			return nil, err
		}
		return wire.Bundle(ctx, c.wallet, c.handle, v, c.connVerKey, senderVK, wire.MsgMessageCreated, mc)

	default:
		return nil, wire.Errf(wire.InvalidStructure, "agentconn.HandleA2A", nil, "unsupported message type %s", env.Type)
	}
}

func newUID() string { return uuid.NewString() }

func (c *Connection) notify(ctx context.Context, im wire.InternalMessage) {
	if c.notifier == nil {
		return
	}
	cs, err := loadWebhookURL(ctx, c.wallet, c.handle, c.agentDetail.DID)
	if err != nil || cs == "" {
		return
	}
	n := wire.MessageNotification{
		MsgUID: im.UID,
		MsgType: im.Type,
		TheirPairwiseDID: c.state.Remote.DID,
		StatusCode: im.StatusCode,
		NotificationID: newUID(),
		PairwiseDID: c.connDID,
	}
	if err := c.notifier.Notify(ctx, cs, n); err != nil {
		glog.Warningf("agentconn: webhook notify for %s: %v", im.UID, err)
	}
}

// agentWebhookConfig mirrors the minimal slice of internal/agent's
// persisted configSet this package needs to read; agentconn does not
// import internal/agent (agent reaches this package only through the
// ConnFactory interface), so the JSON shape is duplicated deliberately,
// not derived.
type agentWebhookConfig struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
}

func loadWebhookURL(ctx context.Context, w walletapi.Wallet, h walletapi.Handle, agentDID string) (string, error) {
	raw, err := w.GetDIDMetadata(ctx, h, agentDID)
	if err != nil {
		if _, ok := err.(*walletapi.ErrNotFound); ok {
			return "", nil
		}
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}
	var cfg agentWebhookConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", nil
	}
	return cfg.WebhookURL, nil
}
