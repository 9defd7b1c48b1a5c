// Package cryptutil implements the cryptographic primitives the
// persistence-adapter contract assumes the underlying wallet provides:
// DID/verkey generation, signing, and the authcrypt/anoncrypt/pack
// envelope family. A real deployment would delegate
// these to a hardware-backed keystore; this package is the reference
// adapter used by internal/memwallet and by every test in this module.
package cryptutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"

	"github.com/mr-tron/base58"
)

// KeyPair is one identity's signing key, plus the X25519 encryption key
// derived from it (the same birational map libsodium's
// crypto_sign_ed25519_pk_to_curve25519 /...sk_to_curve25519 use, so a
// single ed25519 keypair serves both signing and NaCl box operations,
// matching the single "verkey" this protocol's data model names).
type KeyPair struct {
	VerKey string // base58 ed25519 public key -- the identity's address
	Public ed25519.PublicKey
	Private ed25519.PrivateKey
	BoxPub [32]byte // X25519 public key, derived from Public
	BoxPriv [32]byte // X25519 private key, derived from Private
}

// DID is the first 16 bytes of the verkey's public key, base58
// encoded, producing a ~22-character identifier.
func DID(pub ed25519.PublicKey) string {
	return base58.Encode(pub[:16])
}

// GenerateKeyPair creates a fresh identity key, optionally from a fixed
// 32-byte seed (used for the agency's own DID, which boots from a
// configured seed).
func GenerateKeyPair(seed []byte) (KeyPair, error) {
	var pub ed25519.PublicKey
	var priv ed25519.PrivateKey
	if seed != nil {
		if len(seed) != ed25519.SeedSize {
			return KeyPair{}, errSeedSize
		}
		priv = ed25519.NewKeyFromSeed(seed)
		pub = priv.Public().(ed25519.PublicKey)
	} else {
		p, s, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, err
		}
		pub, priv = p, s
	}
	boxPub, boxPriv, err := edToBox(pub, priv)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		VerKey: base58.Encode(pub),
		Public: pub,
		Private: priv,
		BoxPub: boxPub,
		BoxPriv: boxPriv,
	}, nil
}

// VerKeyToBoxPub converts a bare base58 ed25519 verkey (as received from
// a counterparty, with no private component available) into its X25519
// public key, for encrypting to that party.
func VerKeyToBoxPub(verKey string) ([32]byte, error) {
	raw, err := base58.Decode(verKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return [32]byte{}, errBadVerKey
	}
	return edPubToBoxPub(ed25519.PublicKey(raw))
}

// Sign produces an ed25519 signature over msg using kp's private key.
func Sign(kp KeyPair, msg []byte) []byte {
	return ed25519.Sign(kp.Private, msg)
}

// Verify checks an ed25519 signature under the given base58 verkey.
func Verify(verKey string, msg, sig []byte) bool {
	raw, err := base58.Decode(verKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(raw), msg, sig)
}

// edPubToBoxPub implements the Edwards-to-Montgomery birational map on
// the public point: u = (1+y)/(1-y) mod p, where y is the point's
// Edwards y-coordinate recovered directly from the compressed encoding
// (the sign bit of x is irrelevant to u).
func edPubToBoxPub(pub ed25519.PublicKey) ([32]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return [32]byte{}, errBadVerKey
	}
	var y [32]byte
	copy(y[:], pub)
	y[31] &= 0x7f // clear sign bit
	return montgomeryUFromEdwardsY(y), nil
}

func edToBox(pub ed25519.PublicKey, priv ed25519.PrivateKey) (boxPub, boxPriv [32]byte, err error) {
	boxPub, err = edPubToBoxPub(pub)
	if err != nil {
		return
	}
	// libsodium's crypto_sign_ed25519_sk_to_curve25519: the X25519
	// private scalar is the (clamped) first half of SHA-512(seed).
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	copy(boxPriv[:], h[:32])
	clamp(&boxPriv)
	return
}

func clamp(k *[32]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
