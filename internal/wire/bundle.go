package wire

import (
	"context"

	"github.com/vault-mesh/agency/internal/walletapi"
)

// Unbundle authcrypt-decrypts ciphertext with myVerKey, then decodes
// the resulting plaintext into an Envelope, returning the claimed
// sender verkey alongside it. This is the single entry point every
// actor uses to turn an incoming wire message into a typed body via
// DecodeBody.
func Unbundle(ctx context.Context, w walletapi.Wallet, h walletapi.Handle, myVerKey string, ciphertext []byte) (senderVerKey string, env Envelope, v ProtocolVersion, err error) {
	senderVerKey, plaintext, err := w.AuthDecrypt(ctx, h, myVerKey, ciphertext)
	if err != nil {
		return "", Envelope{}, 0, Errf(InvalidKey, "wire.Unbundle", err, "authdecrypt failed")
	}
	env, v, err = DecodeEnvelope(plaintext)
	if err != nil {
		return "", Envelope{}, 0, err
	}
	return senderVerKey, env, v, nil
}

// Bundle encodes body as t under protocol version v, then
// authcrypt-encrypts it from myVerKey to theirVerKey. This is the
// single exit point every actor uses to turn a typed response into a
// wire message.
func Bundle(ctx context.Context, w walletapi.Wallet, h walletapi.Handle, v ProtocolVersion, myVerKey, theirVerKey string, t MessageType, body any) ([]byte, error) {
	plaintext, err := EncodeBody(v, t, body)
	if err != nil {
		return nil, err
	}
	return w.AuthCrypt(ctx, h, myVerKey, theirVerKey, plaintext)
}
