package wire

// ProtocolVersion is carried by the encoding of every message: V1 is a
// MessagePack one-element array, V2 a JSON object. Both are accepted
// on input; a response is always encoded in the same version as the
// request that triggered it.
type ProtocolVersion int

const (
	V1 ProtocolVersion = iota + 1
	V2
)

// MessageType enumerates the complete set of typed messages the core
// must recognise.
type MessageType string

const (
	MsgConnect MessageType = "Connect"
	MsgConnected MessageType = "Connected"

	MsgSignUp MessageType = "SignUp"
	MsgSignedUp MessageType = "SignedUp"

	MsgCreateAgent MessageType = "CreateAgent"
	MsgAgentCreated MessageType = "AgentCreated"

	MsgCreateKey MessageType = "CreateKey"
	MsgKeyCreated MessageType = "KeyCreated"

	MsgConnectionRequest MessageType = "ConnectionRequest"
	MsgConnectionRequestResponse MessageType = "ConnectionRequestResponse"
	MsgConnectionRequestAnswer MessageType = "ConnectionRequestAnswer"
	MsgConnectionRequestAnswerResponse MessageType = "ConnectionRequestAnswerResponse"
	MsgConnectionRequestRedirect MessageType = "ConnectionRequestRedirect"
	MsgConnectionRequestRedirectResp MessageType = "ConnectionRequestRedirectResponse"

	MsgCreateMessage MessageType = "CreateMessage"
	MsgSendRemoteMessage MessageType = "SendRemoteMessage"
	MsgMessageCreated MessageType = "MessageCreated"
	MsgSendMessages MessageType = "SendMessages"

	MsgGetMessages MessageType = "GetMessages"
	MsgMessages MessageType = "Messages"
	MsgGetMessagesByConnections MessageType = "GetMessagesByConnections"
	MsgMessagesByConnections MessageType = "MessagesByConnections"
	MsgUpdateMessageStatus MessageType = "UpdateMessageStatus"
	MsgMessageStatusUpdated MessageType = "MessageStatusUpdated"
	MsgUpdateMessageStatusByConnections MessageType = "UpdateMessageStatusByConnections"
	MsgMessageStatusUpdatedByConns MessageType = "MessageStatusUpdatedByConnections"

	MsgUpdateConfigs MessageType = "UpdateConfigs"
	MsgConfigsUpdated MessageType = "ConfigsUpdated"
	MsgGetConfigs MessageType = "GetConfigs"
	MsgConfigs MessageType = "Configs"
	MsgRemoveConfigs MessageType = "RemoveConfigs"
	MsgConfigsRemoved MessageType = "ConfigsRemoved"
	MsgUpdateComMethod MessageType = "UpdateComMethod"
	MsgComMethodUpdated MessageType = "ComMethodUpdated"

	MsgForward MessageType = "Forward"
)

// RemoteMessageType is the mtype of an InternalMessage / CreateMessage.
type RemoteMessageType string

const (
	RMTConnReq RemoteMessageType = "ConnReq"
	RMTConnReqAnswer RemoteMessageType = "ConnReqAnswer"
	RMTConnReqRedirect RemoteMessageType = "ConnReqRedirect"
	RMTCredOffer RemoteMessageType = "CredOffer"
	RMTCredReq RemoteMessageType = "CredReq"
	RMTCred RemoteMessageType = "Cred"
	RMTProofReq RemoteMessageType = "ProofReq"
	RMTProof RemoteMessageType = "Proof"
)

// RMTOther builds the catch-all "Other(string)" variant.
func RMTOther(tag string) RemoteMessageType { return RemoteMessageType("Other:" + tag) }

// IsOther reports whether mt is an Other(tag) variant and returns the tag.
func (mt RemoteMessageType) IsOther() (tag string, ok bool) {
	const prefix = "Other:"
	if len(mt) > len(prefix) && string(mt[:len(prefix)]) == prefix {
		return string(mt[len(prefix):]), true
	}
	return "", false
}

// MessageStatusCode is the complete status enumeration an
// InternalMessage moves through.
type MessageStatusCode string

const (
	MSCreated MessageStatusCode = "MS-100"
	MSSent MessageStatusCode = "MS-101"
	MSReceived MessageStatusCode = "MS-102"
	MSAccepted MessageStatusCode = "MS-103"
	MSRejected MessageStatusCode = "MS-104"
	MSReviewed MessageStatusCode = "MS-105"
	MSRedirected MessageStatusCode = "MS-106"
)

// IsTerminal reports whether a message in this status may no longer be
// the target of answer_message.
func (s MessageStatusCode) IsTerminal() bool {
	switch s {
	case MSAccepted, MSRejected, MSRedirected:
		return true
	default:
		return false
	}
}

// ConnectionStatus is the AgentConnection-level state.
type ConnectionStatus string

const (
	ConnPending ConnectionStatus = "Pending"
	ConnAccepted ConnectionStatus = "Accepted"
	ConnRedirected ConnectionStatus = "Redirected"
)
