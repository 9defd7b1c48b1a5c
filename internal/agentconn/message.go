package agentconn

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/vault-mesh/agency/internal/cryptutil"
	"github.com/vault-mesh/agency/internal/wire"
)

// verifyDelegationProof checks that proof is a valid ed25519 signature
// under verKey over AgentDID+AgentDelegatedKey. Every handshake message
// that carries a delegation proof must pass this before any connection
// state is mutated on its behalf.
func verifyDelegationProof(verKey string, proof wire.KeyDlgProof) error {
	sig, err := base64.StdEncoding.DecodeString(proof.Signature)
	if err != nil {
		return wire.Errf(wire.InvalidStructure, "agentconn.verifyDelegationProof", err, "malformed delegation proof signature")
	}
	msg := []byte(proof.AgentDID + proof.AgentDelegatedKey)
	if !cryptutil.Verify(verKey, msg, sig) {
		return wire.Errf(wire.InvalidKey, "agentconn.verifyDelegationProof", nil, "delegation proof does not verify under %s", verKey)
	}
	return nil
}

// answeredRef looks up the message replyToMsgID refers to within this
// connection's own history and fails if it is already in a terminal
// status, so a ConnReqAnswer/ConnReqRedirect can never answer the same
// message twice. It returns the referenced message and whether one was
// found; a miss is not itself an error here since the owner-originated
// path mints the reference on first use.
func (c *Connection) answeredRef(op, replyToMsgID string) (wire.InternalMessage, bool, error) {
	if replyToMsgID == "" {
		return wire.InternalMessage{}, false, nil
	}
	ref, ok := c.state.Messages[replyToMsgID]
	if ok && ref.StatusCode.IsTerminal() {
		return wire.InternalMessage{}, false, wire.Errf(wire.Conflict, op, nil, "message %s is already answered", replyToMsgID)
	}
	return ref, ok, nil
}

// role distinguishes who handed this create-message request to the
// connection: the owner, already authenticated by the owning Agent, or
// the remote counterparty, authenticated by this connection's own
// authcrypt check.
type role int

const (
	roleOwner role = iota
	roleRemote
)

// createMessage implements CreateMessage for every mtype the owner may
// originate: ConnReq (mint an invitation payload), ConnReqAnswer /
// ConnReqRedirect (answer one), and any general protocol message.
// Only the owner may originate these; the remote path never calls this
// directly, it goes through receiveConnReqAnswer / receiveGeneralMessage
// instead, which enforce their own invariants.
func (c *Connection) createMessage(ctx context.Context, req wire.CreateMessage, r role) (wire.MessageCreated, error) {
	if r != roleOwner {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.createMessage", nil, "CreateMessage may only be issued by the owner")
	}

	switch {
	case req.ConnReq != nil:
		return c.createConnReq(ctx, req)
	case req.ConnReqAnswer != nil:
		return c.createConnReqAnswer(ctx, req)
	case req.ConnReqRedirect != nil:
		return c.createConnReqRedirect(ctx, req)
	case req.General != nil:
		return c.createGeneral(ctx, req)
	default:
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.createMessage", nil, "no detail set for mtype %s", req.MType)
	}
}

func (c *Connection) newMessage(req wire.CreateMessage, status wire.MessageStatusCode, payload []byte) wire.InternalMessage {
	uid := req.UID
	if uid == "" {
		uid = newUID()
	}
	return wire.InternalMessage{
		UID: uid,
		Type: req.MType,
		StatusCode: status,
		SenderDID: c.ownerDID,
		RefMsgID: req.ReplyToMsgID,
		Payload: payload,
	}
}

func (c *Connection) store(ctx context.Context, im wire.InternalMessage) error {
	if c.state.Messages == nil {
		c.state.Messages = map[string]wire.InternalMessage{}
	}
	if _, exists := c.state.Messages[im.UID]; !exists {
		c.state.Order = append(c.state.Order, im.UID)
	}
	c.state.Messages[im.UID] = im
	if err := c.saveState(ctx); err != nil {
		return err
	}
	c.notify(ctx, im)
	return nil
}

// createConnReq records a not-yet-sent connection request: the payload
// an owner distributes out of band (a QR code, a deep link) to invite
// a counterparty to connect. It is never delivered over the wire by
// this core; SendMsg is ignored for this mtype.
func (c *Connection) createConnReq(ctx context.Context, req wire.CreateMessage) (wire.MessageCreated, error) {
	if c.state.Status != wire.ConnPending {
		return wire.MessageCreated{}, wire.Errf(wire.Conflict, "agentconn.createConnReq", nil, "connection is not pending")
	}
	if err := verifyDelegationProof(c.ownerVerKey, req.ConnReq.KeyDlgProof); err != nil {
		return wire.MessageCreated{}, err
	}
	payload, err := json.Marshal(req.ConnReq)
	if err != nil {
		return wire.MessageCreated{}, err
	}
	im := c.newMessage(req, wire.MSCreated, payload)
	if err := c.store(ctx, im); err != nil {
		return wire.MessageCreated{}, err
	}
	return wire.MessageCreated{UID: im.UID}, nil
}

// createConnReqAnswer sends this connection's own identity to a
// counterparty already known to it because the owner is answering an
// invitation (Remote was set at CreateKey time). Only a pending
// connection may answer; any other status is refused with Conflict.
func (c *Connection) createConnReqAnswer(ctx context.Context, req wire.CreateMessage) (wire.MessageCreated, error) {
	if c.state.Status != wire.ConnPending {
		return wire.MessageCreated{}, wire.Errf(wire.Conflict, "agentconn.createConnReqAnswer", nil, "connection is not pending")
	}
	if !c.state.Remote.known() {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.createConnReqAnswer", nil, "counterparty unknown; answer an invitation via CreateKey first")
	}
	if req.ConnReqAnswer.KeyDlgProof == nil {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.createConnReqAnswer", nil, "missing keyDlgProof")
	}
	if err := verifyDelegationProof(c.ownerVerKey, *req.ConnReqAnswer.KeyDlgProof); err != nil {
		return wire.MessageCreated{}, err
	}
	refIM, hasRef, err := c.answeredRef("agentconn.createConnReqAnswer", req.ReplyToMsgID)
	if err != nil {
		return wire.MessageCreated{}, err
	}

	detail := *req.ConnReqAnswer
	if detail.SenderDetail.DID == "" {
		detail.SenderDetail.DID = c.connDID
	}
	if detail.SenderDetail.VerKey == "" {
		detail.SenderDetail.VerKey = c.connVerKey
	}
	if detail.SenderAgencyDetail.DID == "" {
		detail.SenderAgencyDetail = c.agencyDetail
	}
	if err := verifyDelegationProof(detail.SenderDetail.VerKey, detail.SenderDetail.AgentKeyDlgProof); err != nil {
		return wire.MessageCreated{}, err
	}
	if req.ReplyToMsgID != "" && !hasRef {
		// First time this connection has heard of the invitation being
		// answered: remember it as received so a second answer to the
		// same reply-to id is caught above instead of silently redone.
		refIM = wire.InternalMessage{UID: req.ReplyToMsgID, Type: wire.RMTConnReq, StatusCode: wire.MSReceived, SenderDID: detail.SenderDetail.DID}
		hasRef = true
	}
	detail.ReplyToMsgID = req.ReplyToMsgID
	payload, err := json.Marshal(detail)
	if err != nil {
		return wire.MessageCreated{}, err
	}
	im := c.newMessage(req, wire.MSCreated, payload)
	if req.SendMsg {
		if err := c.sendOverWire(ctx, wire.MsgConnectionRequestAnswer, detail); err != nil {
			return wire.MessageCreated{}, err
		}
		im.StatusCode = wire.MSSent
		c.state.Status = wire.ConnAccepted
	}
	if hasRef {
		refIM.StatusCode = detail.AnswerStatusCode
		c.state.Messages[refIM.UID] = refIM
	}
	if err := c.store(ctx, im); err != nil {
		return wire.MessageCreated{}, err
	}
	return wire.MessageCreated{UID: im.UID}, nil
}

func (c *Connection) createConnReqRedirect(ctx context.Context, req wire.CreateMessage) (wire.MessageCreated, error) {
	if c.state.Status != wire.ConnPending {
		return wire.MessageCreated{}, wire.Errf(wire.Conflict, "agentconn.createConnReqRedirect", nil, "connection is not pending")
	}
	if !c.state.Remote.known() {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.createConnReqRedirect", nil, "counterparty unknown")
	}
	if req.ConnReqRedirect.KeyDlgProof == nil {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.createConnReqRedirect", nil, "missing keyDlgProof")
	}
	if err := verifyDelegationProof(c.ownerVerKey, *req.ConnReqRedirect.KeyDlgProof); err != nil {
		return wire.MessageCreated{}, err
	}
	refIM, hasRef, err := c.answeredRef("agentconn.createConnReqRedirect", req.ReplyToMsgID)
	if err != nil {
		return wire.MessageCreated{}, err
	}

	detail := *req.ConnReqRedirect
	if detail.SenderDetail.DID == "" {
		detail.SenderDetail.DID = c.connDID
	}
	if detail.SenderDetail.VerKey == "" {
		detail.SenderDetail.VerKey = c.connVerKey
	}
	if detail.SenderAgencyDetail.DID == "" {
		detail.SenderAgencyDetail = c.agencyDetail
	}
	if err := verifyDelegationProof(detail.SenderDetail.VerKey, detail.SenderDetail.AgentKeyDlgProof); err != nil {
		return wire.MessageCreated{}, err
	}
	if req.ReplyToMsgID != "" && !hasRef {
		refIM = wire.InternalMessage{UID: req.ReplyToMsgID, Type: wire.RMTConnReq, StatusCode: wire.MSReceived, SenderDID: detail.SenderDetail.DID}
		hasRef = true
	}
	detail.ReplyToMsgID = req.ReplyToMsgID
	payload, err := json.Marshal(detail)
	if err != nil {
		return wire.MessageCreated{}, err
	}
	im := c.newMessage(req, wire.MSCreated, payload)
	if req.SendMsg {
		if err := c.sendOverWire(ctx, wire.MsgConnectionRequestRedirect, detail); err != nil {
			return wire.MessageCreated{}, err
		}
		im.StatusCode = wire.MSSent
	}
	c.state.Status = wire.ConnRedirected
	c.state.RedirectDetail = &detail.RedirectDetail
	if hasRef {
		refIM.StatusCode = detail.AnswerStatusCode
		c.state.Messages[refIM.UID] = refIM
	}
	if err := c.store(ctx, im); err != nil {
		return wire.MessageCreated{}, err
	}
	return wire.MessageCreated{UID: im.UID}, nil
}

func (c *Connection) createGeneral(ctx context.Context, req wire.CreateMessage) (wire.MessageCreated, error) {
	if c.state.Status != wire.ConnAccepted {
		return wire.MessageCreated{}, wire.Errf(wire.Conflict, "agentconn.createGeneral", nil, "connection is not accepted")
	}
	im := c.newMessage(req, wire.MSCreated, req.General.Msg)
	if req.SendMsg {
		if err := c.sendOverWire(ctx, wire.MsgCreateMessage, req); err != nil {
			return wire.MessageCreated{}, err
		}
		im.StatusCode = wire.MSSent
	}
	if err := c.store(ctx, im); err != nil {
		return wire.MessageCreated{}, err
	}
	return wire.MessageCreated{UID: im.UID}, nil
}

// sendRemoteMessage implements the SendRemoteMessage op: a general
// message carrying its own client-supplied uid, routed through the
// same general-message path as createGeneral.
func (c *Connection) sendRemoteMessage(ctx context.Context, req wire.SendRemoteMessage) (wire.MessageCreated, error) {
	cm := wire.CreateMessage{
		MType: req.MType,
		SendMsg: req.SendMsg,
		ReplyToMsgID: req.ReplyToMsgID,
		UID: req.ID,
		General: &wire.GeneralMessageDetail{Msg: req.Msg, Title: req.Title, Detail: req.Detail},
	}
	return c.createGeneral(ctx, cm)
}

// sendOverWire builds the full onion envelope for body, addressed to
// the counterparty, and hands it to the router's Requester: authcrypt
// between this connection's own verkey and the remote one, wrapped in
// a Forward envelope naming the remote connection's DID, anoncrypted
// to the remote agency's own verkey -- the mirror image of
// forwardagent.HandleA2A's unwrap order.
func (c *Connection) sendOverWire(ctx context.Context, t wire.MessageType, body any) error {
	if !c.state.Remote.known() || c.state.Remote.Agency == nil {
		return wire.Errf(wire.Conflict, "agentconn.sendOverWire", nil, "counterparty agency unknown")
	}
	const v = wire.V2
	inner, err := wire.Bundle(ctx, c.wallet, c.handle, v, c.connVerKey, c.state.Remote.VerKey, t, body)
	if err != nil {
		return err
	}
	forward, err := wire.BuildForward(v, c.state.Remote.DID, inner)
	if err != nil {
		return err
	}
	outer, err := c.wallet.AnonCrypt(ctx, c.state.Remote.Agency.VerKey, forward)
	if err != nil {
		return err
	}
	return c.router.RouteToRequester(ctx, wire.RemoteMsg{Endpoint: c.state.Remote.Agency.Endpoint, Bytes: outer})
}

// receiveConnReqAnswer handles an inbound ConnReqAnswer: the
// counterparty that answered an invitation this connection minted is
// now describing itself for the first time.
func (c *Connection) receiveConnReqAnswer(ctx context.Context, senderVK string, detail wire.ConnectionRequestAnswerMessageDetail) error {
	if c.state.Status != wire.ConnPending {
		return wire.Errf(wire.Conflict, "agentconn.receiveConnReqAnswer", nil, "connection is not pending")
	}
	if detail.SenderDetail.VerKey != senderVK {
		return wire.Errf(wire.InvalidKey, "agentconn.receiveConnReqAnswer", nil, "sender detail does not match authcrypt sender")
	}
	if err := verifyDelegationProof(detail.SenderDetail.VerKey, detail.SenderDetail.AgentKeyDlgProof); err != nil {
		return err
	}
	refIM, hasRef, err := c.answeredRef("agentconn.receiveConnReqAnswer", detail.ReplyToMsgID)
	if err != nil {
		return err
	}
	if detail.ReplyToMsgID != "" && !hasRef {
		return wire.Errf(wire.NotFound, "agentconn.receiveConnReqAnswer", nil, "no message %s to answer", detail.ReplyToMsgID)
	}

	c.state.Remote = remote{
		Agency: &detail.SenderAgencyDetail,
		DID: detail.SenderDetail.DID,
		VerKey: detail.SenderDetail.VerKey,
	}
	c.state.Status = wire.ConnAccepted

	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	im := wire.InternalMessage{
		UID: newUID(),
		Type: wire.RMTConnReqAnswer,
		StatusCode: wire.MSAccepted,
		SenderDID: detail.SenderDetail.DID,
		RefMsgID: detail.ReplyToMsgID,
		Thread: detail.Thread,
		Payload: payload,
	}
	if hasRef {
		refIM.StatusCode = detail.AnswerStatusCode
		c.state.Messages[refIM.UID] = refIM
	}
	return c.store(ctx, im)
}

func (c *Connection) receiveConnReqRedirect(ctx context.Context, senderVK string, detail wire.ConnectionRequestRedirectMessageDetail) error {
	if c.state.Status != wire.ConnPending {
		return wire.Errf(wire.Conflict, "agentconn.receiveConnReqRedirect", nil, "connection is not pending")
	}
	if detail.SenderDetail.VerKey != senderVK {
		return wire.Errf(wire.InvalidKey, "agentconn.receiveConnReqRedirect", nil, "sender detail does not match authcrypt sender")
	}
	if err := verifyDelegationProof(detail.SenderDetail.VerKey, detail.SenderDetail.AgentKeyDlgProof); err != nil {
		return err
	}
	refIM, hasRef, err := c.answeredRef("agentconn.receiveConnReqRedirect", detail.ReplyToMsgID)
	if err != nil {
		return err
	}
	if detail.ReplyToMsgID != "" && !hasRef {
		return wire.Errf(wire.NotFound, "agentconn.receiveConnReqRedirect", nil, "no message %s to answer", detail.ReplyToMsgID)
	}

	c.state.Status = wire.ConnRedirected
	c.state.RedirectDetail = &detail.RedirectDetail

	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	im := wire.InternalMessage{
		UID: newUID(),
		Type: wire.RMTConnReqRedirect,
		StatusCode: wire.MSRedirected,
		SenderDID: detail.SenderDetail.DID,
		RefMsgID: detail.ReplyToMsgID,
		Thread: detail.Thread,
		Payload: payload,
		RedirectDetail: &detail.RedirectDetail,
	}
	if hasRef {
		refIM.StatusCode = detail.AnswerStatusCode
		c.state.Messages[refIM.UID] = refIM
	}
	return c.store(ctx, im)
}

func (c *Connection) receiveGeneralMessage(ctx context.Context, senderVK string, relayed wire.CreateMessage) (wire.MessageCreated, error) {
	if c.state.Status != wire.ConnAccepted {
		return wire.MessageCreated{}, wire.Errf(wire.Conflict, "agentconn.receiveGeneralMessage", nil, "connection is not accepted")
	}
	if senderVK != c.state.Remote.VerKey {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidKey, "agentconn.receiveGeneralMessage", nil, "unexpected sender")
	}
	if relayed.General == nil {
		return wire.MessageCreated{}, wire.Errf(wire.InvalidStructure, "agentconn.receiveGeneralMessage", nil, "missing general detail")
	}
	uid := relayed.UID
	if uid == "" {
		uid = newUID()
	}
	im := wire.InternalMessage{
		UID: uid,
		Type: relayed.MType,
		StatusCode: wire.MSReceived,
		SenderDID: c.state.Remote.DID,
		RefMsgID: relayed.ReplyToMsgID,
		Payload: relayed.General.Msg,
	}
	if err := c.store(ctx, im); err != nil {
		return wire.MessageCreated{}, err
	}
	return wire.MessageCreated{UID: im.UID}, nil
}

// getMessages filters the stored InternalMessages by UID and/or status
// code, in insertion order, stripping payloads when asked.
func (c *Connection) getMessages(req wire.GetMessages) wire.Messages {
	uidSet := toSet(req.UIDs)
	statusSet := toStatusSet(req.StatusCodes)

	var out []wire.InternalMessage
	for _, uid := range c.state.Order {
		im, ok := c.state.Messages[uid]
		if !ok {
			continue
		}
		if len(uidSet) > 0 && !uidSet[im.UID] {
			continue
		}
		if len(statusSet) > 0 && !statusSet[im.StatusCode] {
			continue
		}
		if req.ExcludePayload {
			im.Payload = nil
		}
		out = append(out, im)
	}
	return wire.Messages{Messages: out}
}

// updateMessages transitions each named message to statusCode,
// refusing any message already in a terminal state so status only ever
// moves forward.
func (c *Connection) updateMessages(ctx context.Context, req wire.UpdateMessages) (wire.MessageStatusUpdated, error) {
	resp := wire.MessageStatusUpdated{}
	changed := false
	for _, uid := range req.UIDs {
		im, ok := c.state.Messages[uid]
		if !ok || im.StatusCode.IsTerminal() {
			resp.FailedUIDs = append(resp.FailedUIDs, uid)
			continue
		}
		im.StatusCode = req.StatusCode
		c.state.Messages[uid] = im
		resp.UpdatedUIDs = append(resp.UpdatedUIDs, uid)
		changed = true
	}
	if changed {
		if err := c.saveState(ctx); err != nil {
			return wire.MessageStatusUpdated{}, err
		}
		for _, uid := range resp.UpdatedUIDs {
			c.notify(ctx, c.state.Messages[uid])
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

func toStatusSet(ss []wire.MessageStatusCode) map[wire.MessageStatusCode]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[wire.MessageStatusCode]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
