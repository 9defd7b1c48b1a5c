// Package walletapi declares the persistence-adapter contract treated
// as an external black box: wallet lifecycle, DID/pairwise CRUD, and
// the authcrypt/anoncrypt/pack crypto family. internal/memwallet is
// this module's concrete adapter; every actor package only ever
// depends on this interface so a production deployment can swap in a
// hardware-backed keystore without touching protocol logic.
package walletapi

import (
	"context"

	"github.com/vault-mesh/agency/internal/cryptutil"
)

// Handle identifies one open wallet. Each wallet handle is owned by
// exactly one actor.
type Handle string

// Config is the opaque wallet-storage configuration passed through to
// whatever storage backend the adapter uses.
type Config struct {
	ID string
	StorageType string
	StorageConf map[string]string
}

// Credentials are the wallet's open/create credentials, derived from a
// KeyDerivationDirective.
type Credentials struct {
	Directive cryptutil.KeyDerivationDirective
}

// PairwiseRecord is one stored pairwise relationship: "my" DID for
// this relationship, "their" DID, and an opaque metadata blob the
// owning actor serialises/deserialises itself.
type PairwiseRecord struct {
	MyDID string
	TheirDID string
	Metadata []byte
}

// DID is a created or stored identity inside a wallet.
type DID struct {
	DID string
	VerKey string
}

// Wallet is the full persistence-adapter contract. Every method may
// block. A missing record is reported as *ErrNotFound and a duplicate
// as *ErrAlreadyExists; other errors come from the storage backend or
// the crypto layer as they are.
type Wallet interface {
	// Lifecycle.
	Create(ctx context.Context, cfg Config, creds Credentials) error
	Open(ctx context.Context, cfg Config, creds Credentials) (Handle, error)
	Close(ctx context.Context, h Handle) error

	// DID / key management.
	CreateAndStoreMyDID(ctx context.Context, h Handle, seed []byte) (DID, error)
	StoreTheirDID(ctx context.Context, h Handle, did, verKey string) error
	KeyForLocalDID(ctx context.Context, h Handle, did string) (string, error)
	SetDIDMetadata(ctx context.Context, h Handle, did string, metadata []byte) error
	GetDIDMetadata(ctx context.Context, h Handle, did string) ([]byte, error)

	// Pairwise.
	CreatePairwise(ctx context.Context, h Handle, theirDID, myDID string, metadata []byte) error
	ListPairwise(ctx context.Context, h Handle) ([]PairwiseRecord, error)
	GetPairwise(ctx context.Context, h Handle, theirDID string) (PairwiseRecord, error)
	SetPairwiseMetadata(ctx context.Context, h Handle, theirDID string, metadata []byte) error

	// Crypto, delegated to the wallet because a real implementation
	// keeps private key material inside it; our own adapter forwards
	// to internal/cryptutil.
	AuthCrypt(ctx context.Context, h Handle, myVerKey, theirVerKey string, msg []byte) ([]byte, error)
	AnonCrypt(ctx context.Context, theirVerKey string, msg []byte) ([]byte, error)
	AuthDecrypt(ctx context.Context, h Handle, myVerKey string, ciphertext []byte) (senderVerKey string, plaintext []byte, err error)
	AnonDecrypt(ctx context.Context, h Handle, myVerKey string, ciphertext []byte) ([]byte, error)
	Pack(ctx context.Context, h Handle, senderVerKey string, recipientVerKeys []string, msg []byte) ([]byte, error)
	Unpack(ctx context.Context, h Handle, myVerKey string, packed []byte) (senderVerKey string, plaintext []byte, err error)
	Sign(ctx context.Context, h Handle, myVerKey string, msg []byte) ([]byte, error)
}

// ErrAlreadyExists signals the "already exists" condition Create/Open
// must surface explicitly so callers can treat wallet creation as
// idempotent-safe.
type ErrAlreadyExists struct{ What string }

func (e *ErrAlreadyExists) Error() string { return e.What + " already exists" }

// ErrNotFound signals a missing DID, pairwise record, or wallet.
type ErrNotFound struct{ What string }

func (e *ErrNotFound) Error() string { return e.What + " not found" }
