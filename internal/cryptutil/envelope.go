package cryptutil

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// AnonCrypt seals msg for the holder of theirVerKey with no sender
// authentication, matching the persistence adapter's anoncrypt
// capability. Used for the outermost onion layer, which
// any stranger may send before the agency knows who they are.
func AnonCrypt(theirVerKey string, msg []byte) ([]byte, error) {
	pub, err := VerKeyToBoxPub(theirVerKey)
	if err != nil {
		return nil, err
	}
	return box.SealAnonymous(nil, msg, &pub, rand.Reader)
}

// AnonDecrypt opens a message sealed with AnonCrypt using my own
// keypair.
func AnonDecrypt(my KeyPair, ciphertext []byte) ([]byte, error) {
	plain, ok := box.OpenAnonymous(nil, ciphertext, &my.BoxPub, &my.BoxPriv)
	if !ok {
		return nil, errors.New("cryptutil: anon_decrypt failed")
	}
	return plain, nil
}

// authEnvelope is the structure AnonCrypt wraps around an authenticated
// box, carrying the sender's verkey so the recipient can verify it.
type authEnvelope struct {
	Sender string `json:"sender"`
	Nonce []byte `json:"nonce"`
	Msg []byte `json:"msg"`
}

// AuthCrypt seals msg for theirVerKey and authenticates it as coming
// from my. The inner box is authenticated
// (crypto_box) between my and their X25519 keys; the whole thing is then
// anoncrypted to their verkey so only they can even learn who the
// sender claims to be.
func AuthCrypt(my KeyPair, theirVerKey string, msg []byte) ([]byte, error) {
	theirBoxPub, err := VerKeyToBoxPub(theirVerKey)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	sealed := box.Seal(nil, msg, &nonce, &theirBoxPub, &my.BoxPriv)
	inner, err := json.Marshal(authEnvelope{Sender: my.VerKey, Nonce: nonce[:], Msg: sealed})
	if err != nil {
		return nil, err
	}
	return AnonCrypt(theirVerKey, inner)
}

// AuthDecrypt opens a message sealed with AuthCrypt, returning the
// claimed sender verkey (callers that expect a specific counterparty
// must check it themselves) and the plaintext.
func AuthDecrypt(my KeyPair, ciphertext []byte) (senderVerKey string, plaintext []byte, err error) {
	inner, err := AnonDecrypt(my, ciphertext)
	if err != nil {
		return "", nil, err
	}
	var env authEnvelope
	if err := json.Unmarshal(inner, &env); err != nil {
		return "", nil, fmt.Errorf("cryptutil: auth_decrypt envelope: %w", err)
	}
	if len(env.Nonce) != 24 {
		return "", nil, errors.New("cryptutil: auth_decrypt bad nonce")
	}
	senderBoxPub, err := VerKeyToBoxPub(env.Sender)
	if err != nil {
		return "", nil, err
	}
	var nonce [24]byte
	copy(nonce[:], env.Nonce)
	plain, ok := box.Open(nil, env.Msg, &nonce, &senderBoxPub, &my.BoxPriv)
	if !ok {
		return "", nil, errors.New("cryptutil: auth_decrypt failed")
	}
	return env.Sender, plain, nil
}

// --- pack/unpack: Aries-RFC-0019-shaped multi-recipient AEAD envelope ---

type packedRecipient struct {
	VerKey string `json:"verKey"`
	EncryptedKey []byte `json:"encryptedKey"` // CEK, sealed to this recipient
	EncryptedKeyNonce []byte `json:"encryptedKeyNonce,omitempty"` // only set for authcrypt recipients
	SenderVerKey string `json:"senderVerKey,omitempty"`
}

// PackedMessage is the JWE-like envelope produced by Pack.
type PackedMessage struct {
	Recipients []packedRecipient `json:"recipients"`
	Nonce []byte `json:"nonce"`
	CipherText []byte `json:"cipherText"`
}

// Pack encrypts msg once under a fresh symmetric content-encryption key
// (CEK), then wraps that CEK once per recipient verkey. If sender is
// non-nil each recipient's CEK wrap is authenticated (authcrypt);
// otherwise it is anonymous (anoncrypt).1 "pack".
func Pack(sender *KeyPair, recipientVerKeys []string, msg []byte) ([]byte, error) {
	if len(recipientVerKeys) == 0 {
		return nil, errors.New("cryptutil: pack requires at least one recipient")
	}
	var cek [32]byte
	if _, err := rand.Read(cek[:]); err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	sealed := secretbox.Seal(nil, msg, &nonce, &cek)

	pm := PackedMessage{Nonce: nonce[:], CipherText: sealed}
	for _, vk := range recipientVerKeys {
		var wrapped []byte
		var err error
		var wrapNonce []byte
		var senderVK string
		if sender != nil {
			var n [24]byte
			if _, rerr := rand.Read(n[:]); rerr != nil {
				return nil, rerr
			}
			pub, verr := VerKeyToBoxPub(vk)
			if verr != nil {
				return nil, verr
			}
			wrapped = box.Seal(nil, cek[:], &n, &pub, &sender.BoxPriv)
			wrapNonce = n[:]
			senderVK = sender.VerKey
			err = nil
		} else {
			wrapped, err = AnonCrypt(vk, cek[:])
		}
		if err != nil {
			return nil, err
		}
		pm.Recipients = append(pm.Recipients, packedRecipient{
			VerKey: vk,
			EncryptedKey: wrapped,
			EncryptedKeyNonce: wrapNonce,
			SenderVerKey: senderVK,
		})
	}
	return json.Marshal(pm)
}

// Unpack finds my.VerKey among the packed envelope's recipients,
// recovers the CEK, and opens the ciphertext. senderVerKey is empty
// when the message was anoncrypted to this recipient.
func Unpack(my KeyPair, packed []byte) (senderVerKey string, plaintext []byte, err error) {
	var pm PackedMessage
	if err := json.Unmarshal(packed, &pm); err != nil {
		return "", nil, fmt.Errorf("cryptutil: unpack: %w", err)
	}
	for _, r := range pm.Recipients {
		if r.VerKey != my.VerKey {
			continue
		}
		var cek []byte
		if r.SenderVerKey != "" {
			if len(r.EncryptedKeyNonce) != 24 {
				return "", nil, errors.New("cryptutil: unpack bad key nonce")
			}
			senderBoxPub, serr := VerKeyToBoxPub(r.SenderVerKey)
			if serr != nil {
				return "", nil, serr
			}
			var n [24]byte
			copy(n[:], r.EncryptedKeyNonce)
			opened, ok := box.Open(nil, r.EncryptedKey, &n, &senderBoxPub, &my.BoxPriv)
			if !ok {
				return "", nil, errors.New("cryptutil: unpack key unwrap failed")
			}
			cek = opened
		} else {
			opened, aerr := AnonDecrypt(my, r.EncryptedKey)
			if aerr != nil {
				return "", nil, aerr
			}
			cek = opened
		}
		if len(cek) != 32 {
			return "", nil, errors.New("cryptutil: unpack bad cek size")
		}
		var cekArr [32]byte
		copy(cekArr[:], cek)
		if len(pm.Nonce) != 24 {
			return "", nil, errors.New("cryptutil: unpack bad nonce")
		}
		var nonce [24]byte
		copy(nonce[:], pm.Nonce)
		plain, ok := secretbox.Open(nil, pm.CipherText, &nonce, &cekArr)
		if !ok {
			return "", nil, errors.New("cryptutil: unpack ciphertext open failed")
		}
		return r.SenderVerKey, plain, nil
	}
	return "", nil, errors.New("cryptutil: unpack: not an intended recipient")
}
