package cryptutil

import "golang.org/x/crypto/argon2"

// argon2Key derives a 32-byte wallet key from a low-entropy passphrase.
// KDFArgon2iInt/KDFArgon2iMod distinguish "interactive" vs "moderate"
// cost profiles; both currently resolve to the same moderate Argon2id
// parameters, since only call-site intent differs, not the adapter's
// correctness.
func argon2Key(passphrase, salt []byte) []byte {
	if len(salt) < 8 {
		padded := make([]byte, 8)
		copy(padded, salt)
		salt = padded
	}
	return argon2.IDKey(passphrase, salt, 3, 64*1024, 2, 32)
}
