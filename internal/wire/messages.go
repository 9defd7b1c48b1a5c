package wire

// AgentDetail identifies an agent-side DID/verkey pair, used both for
// "my" agent and the remote counterparty's agent.
type AgentDetail struct {
	DID string `json:"did"`
	VerKey string `json:"verKey"`
}

// ForwardAgentDetail names an agency's entry point: its DID, verkey and
// publicly reachable endpoint.
type ForwardAgentDetail struct {
	DID string `json:"did"`
	VerKey string `json:"verKey"`
	Endpoint string `json:"endpoint"`
}

// KeyDlgProof is a delegation proof: a signature by a user's pairwise
// verkey over the agent-side DID+verkey pair acting on their behalf.
type KeyDlgProof struct {
	AgentDID string `json:"agentDID"`
	AgentDelegatedKey string `json:"agentDelegatedKey"`
	Signature string `json:"signature"` // base64 of ed25519 sig over AgentDID+AgentDelegatedKey
}

// SenderDetail carries the sending agent's identity plus its own
// delegation proof, exchanged during connection negotiation.
type SenderDetail struct {
	DID string `json:"did"`
	VerKey string `json:"verKey"`
	AgentKeyDlgProof KeyDlgProof `json:"agentKeyDlgProof"`
	Name string `json:"name,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// RedirectDetail names the DID/verkey the initiator should re-address to
// after a ConnReqRedirect.
type RedirectDetail struct {
	DID string `json:"did"`
	VerKey string `json:"verKey"`
	SignedUpEndpointDID string `json:"signedUpEndpointDID,omitempty"`
}

// Thread is DIDComm threading metadata, carried opaquely.
type Thread struct {
	ThID string `json:"thid,omitempty"`
	PThID string `json:"pthid,omitempty"`
	SenderOrder int `json:"senderOrder"`
	ReceivedOrders map[string]int `json:"receivedOrders,omitempty"`
}

// ConnectionRequestMessageDetail is the detail union for mtype=ConnReq.
type ConnectionRequestMessageDetail struct {
	KeyDlgProof KeyDlgProof `json:"keyDlgProof"`
	PhoneNo string `json:"phoneNo,omitempty"`
}

// ConnectionRequestAnswerMessageDetail is the detail union for
// mtype=ConnReqAnswer.
type ConnectionRequestAnswerMessageDetail struct {
	KeyDlgProof *KeyDlgProof `json:"keyDlgProof,omitempty"`
	SenderDetail SenderDetail `json:"senderDetail"`
	SenderAgencyDetail ForwardAgentDetail `json:"senderAgencyDetail"`
	AnswerStatusCode MessageStatusCode `json:"answerStatusCode"`
	ReplyToMsgID string `json:"replyToMsgId,omitempty"`
	Thread *Thread `json:"thread,omitempty"`
}

// ConnectionRequestRedirectMessageDetail is the detail union for
// mtype=ConnReqRedirect.
type ConnectionRequestRedirectMessageDetail struct {
	KeyDlgProof *KeyDlgProof `json:"keyDlgProof,omitempty"`
	SenderDetail SenderDetail `json:"senderDetail"`
	SenderAgencyDetail ForwardAgentDetail `json:"senderAgencyDetail"`
	RedirectDetail RedirectDetail `json:"redirectDetail"`
	AnswerStatusCode MessageStatusCode `json:"answerStatusCode"`
	ReplyToMsgID string `json:"replyToMsgId,omitempty"`
	Thread *Thread `json:"thread,omitempty"`
}

// GeneralMessageDetail is the detail union for any other mtype
// (CredOffer, CredReq, Cred, ProofReq, Proof, Other(_)).
type GeneralMessageDetail struct {
	Msg []byte `json:"msg"`
	Title string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// CreateMessage is the request to create (and optionally send) a new
// InternalMessage inside an AgentConnection.
type CreateMessage struct {
	MType RemoteMessageType `json:"mtype"`
	SendMsg bool `json:"sendMsg"`
	ReplyToMsgID string `json:"replyToMsgId,omitempty"`
	UID string `json:"uid,omitempty"`

	ConnReq *ConnectionRequestMessageDetail `json:"connReqDetail,omitempty"`
	ConnReqAnswer *ConnectionRequestAnswerMessageDetail `json:"connReqAnswerDetail,omitempty"`
	ConnReqRedirect *ConnectionRequestRedirectMessageDetail `json:"connReqRedirectDetail,omitempty"`
	General *GeneralMessageDetail `json:"generalDetail,omitempty"`
}

// MessageCreated is the response to CreateMessage / SendRemoteMessage.
type MessageCreated struct {
	UID string `json:"uid"`
}

// InternalMessage is the durable record of one message exchanged over a
// pairwise relationship.
type InternalMessage struct {
	UID string `json:"uid"`
	Type RemoteMessageType `json:"type"`
	StatusCode MessageStatusCode `json:"statusCode"`
	SenderDID string `json:"senderDid"`
	RefMsgID string `json:"refMsgId,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	SendingData map[string]string `json:"sendingData,omitempty"`
	Thread *Thread `json:"thread,omitempty"`
	RedirectDetail *RedirectDetail `json:"redirectDetail,omitempty"`
}

// GetMessages filters InternalMessages within one AgentConnection.
type GetMessages struct {
	ExcludePayload bool `json:"excludePayload,omitempty"`
	UIDs []string `json:"uids,omitempty"`
	StatusCodes []MessageStatusCode `json:"statusCodes,omitempty"`
}

// Messages is the response to GetMessages.
type Messages struct {
	Messages []InternalMessage `json:"messages"`
}

// UpdateMessages mutates message status within one AgentConnection.
type UpdateMessages struct {
	UIDs []string `json:"uids"`
	StatusCode MessageStatusCode `json:"statusCode"`
}

// MessageStatusUpdated is the response to UpdateMessages.
type MessageStatusUpdated struct {
	UpdatedUIDs []string `json:"updatedUids"`
	FailedUIDs []string `json:"failedUids"`
}

// GetMessagesByConnections is the Agent-level fan-out request.
type GetMessagesByConnections struct {
	ExcludePayload bool `json:"excludePayload,omitempty"`
	UIDs []string `json:"uids,omitempty"`
	StatusCodes []MessageStatusCode `json:"statusCodes,omitempty"`
	PairwiseDIDs []string `json:"pairwiseDids,omitempty"`
}

// MessagesByConnections is the joined response, one slice per pairwise.
type MessagesByConnections struct {
	ConnectionsMessages []ConnectionMessages `json:"messages"`
}

type ConnectionMessages struct {
	PairwiseDID string `json:"pairwiseDid"`
	Messages []InternalMessage `json:"msgs"`
}

// UpdateMessageStatusByConnections is the Agent-level fan-out for status
// updates, keyed by pairwise DID.
type UpdateMessageStatusByConnections struct {
	UIDsByConn map[string][]string `json:"uidsByConns"`
	StatusCode MessageStatusCode `json:"statusCode"`
}

type MessageStatusUpdatedByConnections struct {
	UpdatedUIDsByConn map[string][]string `json:"updatedUidsByConns"`
	FailedUIDsByConn map[string][]string `json:"failedUidsByConns"`
}

// ConnRequest is the internal, already-decrypted dispatch an Agent
// hands its owned AgentConnection through the Router's pairwise
// routing table. Exactly one of the pointer fields is set, selected by
// Op.
type ConnRequest struct {
	Op MessageType
	CreateMessage *CreateMessage
	SendRemoteMessage *SendRemoteMessage
	GetMessages *GetMessages
	UpdateMessages *UpdateMessages
}

// ConnResponse is the reply to a ConnRequest.
type ConnResponse struct {
	Op MessageType
	MessageCreated *MessageCreated
	Messages *Messages
	MessageStatusUpdated *MessageStatusUpdated
}

// Connect/Connected.
type Connect struct {
	FromDID string `json:"fromDID"`
	FromDIDVerKey string `json:"fromDIDVerKey"`
}

type Connected struct {
	WithPairwiseDID string `json:"withPairwiseDID"`
	WithPairwiseDIDVerKey string `json:"withPairwiseDIDVerKey"`
}

// SignUp/SignedUp, CreateAgent/AgentCreated.
type SignUp struct{}
type SignedUp struct{}
type CreateAgent struct{}
type AgentCreated struct {
	WithPairwiseDID string `json:"withPairwiseDID"`
	WithPairwiseDIDVerKey string `json:"withPairwiseDIDVerKey"`
}

// CreateKey/KeyCreated. Target* is populated when the
// owner already knows the counterparty to connect to -- answering an
// out-of-band invitation rather than minting one -- so the new
// AgentConnection can address its first ConnReqAnswer without a
// separate "set remote" step.
type CreateKey struct {
	ForDID string `json:"forDID"`
	ForDIDVerKey string `json:"forDIDVerKey"`

	TargetAgency *ForwardAgentDetail `json:"targetAgency,omitempty"`
	TargetDID string `json:"targetDID,omitempty"`
	TargetVerKey string `json:"targetVerKey,omitempty"`
}

type KeyCreated struct {
	WithPairwiseDID string `json:"withPairwiseDID"`
	WithPairwiseDIDVerKey string `json:"withPairwiseDIDVerKey"`
}

// Configs. Only these three keys are ever persisted.
const (
	ConfigName = "name"
	ConfigLogoURL = "logoUrl"
	ConfigNotificationWebhookURL = "notificationWebhookUrl"
)

type ConfigItem struct {
	Name string `json:"name"`
	Value string `json:"value"`
}

type UpdateConfigs struct {
	Configs []ConfigItem `json:"configs"`
}
type ConfigsUpdated struct{}

type GetConfigs struct {
	Names []string `json:"configs"`
}
type Configs struct {
	Configs []ConfigItem `json:"configs"`
}

type RemoveConfigs struct {
	Names []string `json:"configs"`
}
type ConfigsRemoved struct{}

type ComMethodType string

const ComMethodWebhook ComMethodType = "Webhook"

type UpdateComMethod struct {
	Type ComMethodType `json:"type"`
	Value string `json:"value"`
}
type ComMethodUpdated struct{}

// SendRemoteMessage is the same shape as CreateMessage but used for the
// general-message-only path that also carries its own uid/title/detail.
type SendRemoteMessage struct {
	ID string `json:"id,omitempty"`
	MType RemoteMessageType `json:"mtype"`
	SendMsg bool `json:"sendMsg"`
	ReplyToMsgID string `json:"replyToMsgId,omitempty"`
	Msg []byte `json:"msg"`
	Title string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// RemoteMsg is an outbound HTTP delivery job handed from any actor to
// the Router then the Requester.
type RemoteMsg struct {
	Endpoint string
	Bytes []byte
}

// MessageNotification is the webhook payload fired whenever an
// AgentConnection creates or transitions an InternalMessage, if the
// owning agent has configured a notification webhook.
type MessageNotification struct {
	MsgUID string `json:"msgUid"`
	MsgType RemoteMessageType `json:"msgType"`
	TheirPairwiseDID string `json:"theirPairwiseDid"`
	StatusCode MessageStatusCode `json:"statusCode"`
	NotificationID string `json:"notificationId"`
	PairwiseDID string `json:"pairwiseDid"`
}
