package cryptutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonCryptRoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	ciphertext, err := AnonCrypt(recipient.VerKey, []byte("hello"))
	require.NoError(t, err)

	plain, err := AnonDecrypt(recipient, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plain)
}

func TestAuthCryptRoundTripRevealsSender(t *testing.T) {
	sender, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	recipient, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	ciphertext, err := AuthCrypt(sender, recipient.VerKey, []byte("who is this"))
	require.NoError(t, err)

	senderVK, plain, err := AuthDecrypt(recipient, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, sender.VerKey, senderVK)
	assert.Equal(t, []byte("who is this"), plain)
}

func TestAuthDecryptWrongRecipientFails(t *testing.T) {
	sender, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	recipient, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	stranger, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	ciphertext, err := AuthCrypt(sender, recipient.VerKey, []byte("secret"))
	require.NoError(t, err)

	_, _, err = AuthDecrypt(stranger, ciphertext)
	assert.Error(t, err)
}

func TestPackUnpackAnonymous(t *testing.T) {
	a, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	b, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	packed, err := Pack(nil, []string{a.VerKey, b.VerKey}, []byte("multi-recipient"))
	require.NoError(t, err)

	senderVK, plain, err := Unpack(a, packed)
	require.NoError(t, err)
	assert.Empty(t, senderVK)
	assert.Equal(t, []byte("multi-recipient"), plain)

	senderVK, plain, err = Unpack(b, packed)
	require.NoError(t, err)
	assert.Empty(t, senderVK)
	assert.Equal(t, []byte("multi-recipient"), plain)
}

func TestPackUnpackAuthenticated(t *testing.T) {
	sender, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	recipient, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	packed, err := Pack(&sender, []string{recipient.VerKey}, []byte("signed parcel"))
	require.NoError(t, err)

	senderVK, plain, err := Unpack(recipient, packed)
	require.NoError(t, err)
	assert.Equal(t, sender.VerKey, senderVK)
	assert.Equal(t, []byte("signed parcel"), plain)
}

func TestUnpackNotIntendedRecipient(t *testing.T) {
	a, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	stranger, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	packed, err := Pack(nil, []string{a.VerKey}, []byte("not for you"))
	require.NoError(t, err)

	_, _, err = Unpack(stranger, packed)
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	sig := Sign(kp, []byte("attest this"))
	assert.True(t, Verify(kp.VerKey, []byte("attest this"), sig))
	assert.False(t, Verify(kp.VerKey, []byte("attest that"), sig))
}

func TestGenerateKeyPairFromSeedIsDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := GenerateKeyPair(seed)
	require.NoError(t, err)
	b, err := GenerateKeyPair(seed)
	require.NoError(t, err)
	assert.Equal(t, a.VerKey, b.VerKey)
}

func TestGenerateKeyPairBadSeedSize(t *testing.T) {
	_, err := GenerateKeyPair([]byte{1, 2, 3})
	assert.Error(t, err)
}
