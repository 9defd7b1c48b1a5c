package wire

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripV2(t *testing.T) {
	raw, err := EncodeBody(V2, MsgCreateKey, CreateKey{ForDID: "did:1", ForDIDVerKey: "vk1"})
	require.NoError(t, err)

	env, v, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, V2, v)
	assert.Equal(t, MsgCreateKey, env.Type)

	var body CreateKey
	require.NoError(t, DecodeBody(env, &body))
	assert.Equal(t, "did:1", body.ForDID)
	assert.Equal(t, "vk1", body.ForDIDVerKey)
}

func TestEncodeDecodeRoundTripV1(t *testing.T) {
	raw, err := EncodeBody(V1, MsgConnect, Connect{FromDID: "did:2", FromDIDVerKey: "vk2"})
	require.NoError(t, err)

	env, v, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, V1, v)
	assert.Equal(t, MsgConnect, env.Type)

	var body Connect
	require.NoError(t, DecodeBody(env, &body))
	assert.Equal(t, "did:2", body.FromDID)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte("not an envelope at all"))
	assert.Error(t, err)
	assert.True(t, IsKind(err, InvalidStructure))
}

func TestEncodeBodyUnknownVersion(t *testing.T) {
	_, err := EncodeBody(ProtocolVersion(99), MsgConnect, Connect{})
	assert.Error(t, err)
}

// TestCreateMessageRoundTripPreservesNestedDetail exercises a body with
// several optional nested pointer fields, which is where a lossy
// codec (a dropped field, a flattened nil) is most likely to show up.
// go-test/deep reports exactly which field diverged instead of just
// "not equal", which matters once the struct has this many optional
// branches.
func TestCreateMessageRoundTripPreservesNestedDetail(t *testing.T) {
	want := CreateMessage{
		MType: RMTConnReqAnswer,
		SendMsg: true,
		UID: "uid-99",
		ConnReqAnswer: &ConnectionRequestAnswerMessageDetail{
			SenderDetail: SenderDetail{DID: "did:answerer", VerKey: "vk:answerer"},
		},
	}

	for _, v := range []ProtocolVersion{V1, V2} {
		raw, err := EncodeBody(v, MsgCreateMessage, want)
		require.NoError(t, err)

		env, gotVersion, err := DecodeEnvelope(raw)
		require.NoError(t, err)
		assert.Equal(t, v, gotVersion)

		var got CreateMessage
		require.NoError(t, DecodeBody(env, &got))
		if diff := deep.Equal(want, got); diff != nil {
			t.Errorf("version %d round trip diverged: %v", v, diff)
		}
	}
}
