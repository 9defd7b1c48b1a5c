package cryptutil

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// KDFMethod names how a wallet's symmetric key is derived from its
// credentials: Argon2iMod and Argon2iInt both mean "the key is a
// low-entropy passphrase, run through the named KDF at wallet-open
// time"; Raw means the key is a 32-byte value, base58-encoded, used
// directly.
type KDFMethod string

const (
	KDFArgon2iMod KDFMethod = "ARGON2I_MOD"
	KDFArgon2iInt KDFMethod = "ARGON2I_INT"
	KDFRaw KDFMethod = "RAW"
)

// KeyDerivationDirective is the persisted wallet-credential shape.
type KeyDerivationDirective struct {
	Method KDFMethod `json:"keyDerivationMethod"`
	Key string `json:"key"`
}

// NewKeyDerivationDirective builds a fresh directive for a newly
// created wallet: Argon2i* methods get a random 10-character
// passphrase, Raw gets a freshly generated 32-byte key, base58-encoded.
func NewKeyDerivationDirective(method KDFMethod) (KeyDerivationDirective, error) {
	switch method {
	case KDFArgon2iMod, KDFArgon2iInt:
		pass, err := randString(10)
		if err != nil {
			return KeyDerivationDirective{}, err
		}
		return KeyDerivationDirective{Method: method, Key: pass}, nil
	case KDFRaw:
		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return KeyDerivationDirective{}, err
		}
		return KeyDerivationDirective{Method: KDFRaw, Key: base58.Encode(raw[:])}, nil
	default:
		return KeyDerivationDirective{}, errBadVerKey
	}
}

const randAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randAlphabet[int(b)%len(randAlphabet)]
	}
	return string(out), nil
}

// WalletKey resolves the directive into the actual symmetric key bytes
// used to open a wallet. Argon2i methods run the passphrase through
// argon2.IDKey with a key-derived salt (low-entropy passphrase ->
// uniform key); Raw decodes the base58 value directly.
func (d KeyDerivationDirective) WalletKey(salt []byte) ([]byte, error) {
	switch d.Method {
	case KDFRaw:
		return base58.Decode(d.Key)
	case KDFArgon2iMod, KDFArgon2iInt:
		return argon2Key([]byte(d.Key), salt), nil
	default:
		return nil, errBadVerKey
	}
}
