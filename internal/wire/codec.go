package wire

import "encoding/json"

// Envelope is the single internal representation of "a typed message",
// used uniformly by both wire codecs: v1 (MessagePack) nests it inside a
// one-element array the way legacy Aries bundles do; v2 (JSON) encodes
// it as a bare object. Actors never see the wire bytes directly, only
// Envelope values.
type Envelope struct {
	Type MessageType `json:"@type" msgpack:"@type"`
	Body json.RawMessage `json:"body" msgpack:"body"`
}

// EncodeBody marshals a typed body (one of the structs in messages.go)
// into an Envelope of the requested protocol version.
func EncodeBody(v ProtocolVersion, t MessageType, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, Errf(InvalidStructure, "EncodeBody", err, "marshal body")
	}
	env := Envelope{Type: t, Body: raw}
	switch v {
	case V1:
		return MarshalMsgPack([]Envelope{env})
	case V2:
		return json.Marshal(env)
	default:
		return nil, Errf(InvalidStructure, "EncodeBody", nil, "unknown protocol version %d", v)
	}
}

// DecodeEnvelope accepts plaintext already unwrapped by one decryption
// layer and returns the type tag plus raw body, trying v2 (JSON object)
// first since it is self-describing, then falling back to v1
// (MessagePack one-element array), succeeding on whichever shape the
// plaintext actually is regardless of what the caller expected.
func DecodeEnvelope(plaintext []byte) (Envelope, ProtocolVersion, error) {
	var env Envelope
	if err := json.Unmarshal(plaintext, &env); err == nil && env.Type != "" {
		return env, V2, nil
	}
	var envs []Envelope
	if err := UnmarshalMsgPack(plaintext, &envs); err == nil && len(envs) == 1 {
		return envs[0], V1, nil
	}
	return Envelope{}, 0, Errf(InvalidStructure, "DecodeEnvelope", nil, "plaintext is neither a v1 nor a v2 envelope")
}

// DecodeBody unmarshals env.Body into dst (a pointer to one of the
// typed structs in messages.go).
func DecodeBody(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Body, dst); err != nil {
		return Errf(InvalidStructure, "DecodeBody", err, "unmarshal body for %s", env.Type)
	}
	return nil
}
