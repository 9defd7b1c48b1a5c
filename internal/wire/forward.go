package wire

import "encoding/json"

// Forward is the onion-routing primitive. All three wire variants reduce to the same
// in-memory shape once parsed:
//
//	v1: {"@type": "...FORWARD", "fwd": did, "msg": <bytes>}
//	v2: {"@type": "...forward", "fwd": did, "msg": <object>}
//	v3: {"@type": "...1.0/forward", "to": did, "msg": <object>}
//
// In both object-shaped variants the inner "msg" is re-serialised to
// bytes before being handed to the router ; this
// core keeps Forward.Msg as raw bytes uniformly so one dispatch call
// handles all three shapes.
type Forward struct {
	To string `json:"to"`
	Msg []byte `json:"msg"`
}

type forwardBody struct {
	Fwd string `json:"fwd,omitempty"`
	To string `json:"to,omitempty"`
	Msg []byte `json:"msg"`
}

// isForwardType recognises the routing-protocol @type tag regardless
// of DID-prefixed family/version, matching on the trailing message
// name the way Aries @type URI suffix matching works.
func isForwardType(t string) bool {
	if t == "" {
		return false
	}
	const suffixLower = "forward"
	if len(t) < len(suffixLower) {
		return false
	}
	tail := t[len(t)-len(suffixLower):]
	return tail == "forward" || tail == "FORWARD" || tail == "Forward"
}

// ParseForward accepts plaintext already unwrapped by one decryption
// layer and, if it is any of the three Forward shapes, returns the
// normalised Forward{To, Msg}. ok=false means the plaintext is not a
// Forward and should be handled as a protocol control message instead.
func ParseForward(plaintext []byte) (fwd Forward, ok bool, err error) {
	env, _, err := DecodeEnvelope(plaintext)
	if err != nil {
		return Forward{}, false, err
	}
	if !isForwardType(string(env.Type)) {
		return Forward{}, false, nil
	}
	var body struct {
		Fwd string          `json:"fwd"`
		To  string          `json:"to"`
		Msg json.RawMessage `json:"msg"`
	}
	if err := DecodeBody(env, &body); err != nil {
		return Forward{}, false, err
	}
	to := body.To
	if to == "" {
		to = body.Fwd
	}
	msg := []byte(body.Msg)
	if len(msg) > 0 && msg[0] == '"' {
		if err := json.Unmarshal(body.Msg, &msg); err != nil {
			return Forward{}, false, Errf(InvalidStructure, "ParseForward", err, "decode msg bytes")
		}
	}
	return Forward{To: to, Msg: msg}, true, nil
}

// BuildForward wraps bytes in a Forward envelope addressed to "to", in
// the requested protocol version. This core always writes the v3 "to"
// field when constructing outbound onion layers but
// accepts all three shapes on input.
func BuildForward(v ProtocolVersion, to string, innerMsg []byte) ([]byte, error) {
	return EncodeBody(v, MsgForward, forwardBody{To: to, Msg: innerMsg})
}
